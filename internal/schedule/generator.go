// Package schedule turns a product price and a payment plan into the ordered
// list of payment obligations. Generation is pure and deterministic: no I/O,
// no clock reads, identical inputs give identical output.
package schedule

import (
	"time"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
)

// Generate produces the obligation rows for one enrollment. Amounts are minor
// currency units; the sum of generated amounts always equals totalAmount
// exactly, with any division remainder assigned to the final installment.
//
// A zero totalAmount yields an empty schedule; the caller is expected to mark
// the enrollment completed. Subscription plans materialize only their first
// period here; later periods are generated lazily, one period ahead.
func Generate(totalAmount int64, currency string, plan models.PaymentPlan, startDate time.Time) ([]models.PaymentObligation, error) {
	if totalAmount < 0 {
		return nil, apperrors.Validationf("total amount must not be negative, got %d", totalAmount)
	}
	if err := plan.Validate(); err != nil {
		return nil, apperrors.Validationf("invalid plan: %v", err)
	}
	if totalAmount == 0 {
		return nil, nil
	}

	switch plan.PlanType {
	case models.PlanTypeOneTime:
		return []models.PaymentObligation{
			newObligation(1, models.PaymentTypeFull, totalAmount, currency, startDate),
		}, nil

	case models.PlanTypeDeposit:
		deposit := depositAmount(totalAmount, plan)
		if deposit <= 0 || deposit > totalAmount {
			return nil, apperrors.Validationf("deposit amount %d out of range for total %d", deposit, totalAmount)
		}
		balanceDue := startDate.AddDate(0, 0, plan.DepositBalanceDueDays)
		obligations := []models.PaymentObligation{
			newObligation(1, models.PaymentTypeDeposit, deposit, currency, startDate),
		}
		if balance := totalAmount - deposit; balance > 0 {
			obligations = append(obligations,
				newObligation(2, models.PaymentTypeInstallment, balance, currency, balanceDue))
		}
		return obligations, nil

	case models.PlanTypeInstallments:
		return installmentObligations(totalAmount, currency, plan, startDate), nil

	case models.PlanTypeSubscription:
		firstDue := startDate.AddDate(0, 0, plan.TrialDays)
		return []models.PaymentObligation{
			newObligation(1, models.PaymentTypeSubscription, totalAmount, currency, firstDue),
		}, nil
	}

	return nil, apperrors.Validationf("unknown plan type %q", plan.PlanType)
}

// SplitEvenly divides an amount into n integer parts whose sum is exactly the
// amount; the remainder cents go to the last part. Shared with the
// restructure flow so both use the same rounding rule.
func SplitEvenly(amount int64, n int) []int64 {
	per := amount / int64(n)
	parts := make([]int64, n)
	for i := range parts {
		parts[i] = per
	}
	parts[n-1] = amount - per*int64(n-1)
	return parts
}

func installmentObligations(total int64, currency string, plan models.PaymentPlan, start time.Time) []models.PaymentObligation {
	parts := SplitEvenly(total, plan.InstallmentCount)
	obligations := make([]models.PaymentObligation, 0, len(parts))
	due := start
	for i, amount := range parts {
		obligations = append(obligations,
			newObligation(i+1, models.PaymentTypeInstallment, amount, currency, due))
		due = models.AdvanceByFrequency(due, plan.InstallmentFrequency, plan.CustomFrequencyDays)
	}
	return obligations
}

// depositAmount resolves the deposit in minor units. Percentages are basis
// points rounded half-up to the nearest minor unit.
func depositAmount(total int64, plan models.PaymentPlan) int64 {
	if plan.DepositFixedAmount > 0 {
		return plan.DepositFixedAmount
	}
	return (total*int64(plan.DepositPercent) + 5000) / 10000
}

func newObligation(number int, pt models.PaymentType, amount int64, currency string, due time.Time) models.PaymentObligation {
	return models.PaymentObligation{
		PaymentNumber:   number,
		PaymentType:     pt,
		Amount:          amount,
		Currency:        currency,
		OriginalDueDate: due,
		ScheduledDate:   due,
		Status:          models.ObligationStatusPending,
	}
}
