package models

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
)

// PlanType identifies how a product price is split into obligations.
type PlanType string

const (
	PlanTypeOneTime      PlanType = "one_time"
	PlanTypeDeposit      PlanType = "deposit"
	PlanTypeInstallments PlanType = "installments"
	PlanTypeSubscription PlanType = "subscription"
)

// InstallmentFrequency is the cadence between installment due dates.
type InstallmentFrequency string

const (
	FrequencyWeekly   InstallmentFrequency = "weekly"
	FrequencyBiweekly InstallmentFrequency = "biweekly"
	FrequencyMonthly  InstallmentFrequency = "monthly"
	FrequencyCustom   InstallmentFrequency = "custom"
)

// PaymentPlan is an immutable template describing how a price becomes a
// schedule. Amount-like fields are in minor currency units; DepositPercent is
// in basis points so a 12.5% deposit is representable without floats.
type PaymentPlan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string   `gorm:"type:varchar(255)" json:"name"`
	PlanType PlanType `gorm:"type:varchar(50);default:'one_time'" json:"plan_type"`

	// Deposit parameters. Exactly one of DepositPercent / DepositFixedAmount
	// is set for deposit plans.
	DepositPercent        int   `json:"deposit_percent"` // basis points, 0 < x <= 10000
	DepositFixedAmount    int64 `json:"deposit_fixed_amount"`
	DepositBalanceDueDays int   `json:"deposit_balance_due_days"`

	// Installment parameters.
	InstallmentCount     int                  `json:"installment_count"`
	InstallmentFrequency InstallmentFrequency `gorm:"type:varchar(20);default:'monthly'" json:"installment_frequency"`
	CustomFrequencyDays  int                  `json:"custom_frequency_days"`

	// Subscription parameters. SubscriptionRule is an optional RFC 5545 RRULE
	// string; when absent SubscriptionFrequency drives the cadence.
	SubscriptionFrequency InstallmentFrequency `gorm:"type:varchar(20);default:'monthly'" json:"subscription_frequency"`
	SubscriptionRule      *string              `gorm:"type:text" json:"subscription_rule"`
	TrialDays             int                  `json:"trial_days"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}

// Validate rejects plan parameter combinations that can never produce a valid
// schedule. Generation assumes a validated plan.
func (p PaymentPlan) Validate() error {
	switch p.PlanType {
	case PlanTypeOneTime:
		return nil
	case PlanTypeDeposit:
		if p.DepositFixedAmount > 0 {
			if p.DepositPercent > 0 {
				return fmt.Errorf("deposit plan must set either a percent or a fixed amount, not both")
			}
			return nil
		}
		if p.DepositPercent <= 0 || p.DepositPercent > 10000 {
			return fmt.Errorf("deposit percent must be within (0, 10000] basis points, got %d", p.DepositPercent)
		}
		return nil
	case PlanTypeInstallments:
		if p.InstallmentCount < 1 {
			return fmt.Errorf("installment count must be >= 1, got %d", p.InstallmentCount)
		}
		if err := validFrequency(p.InstallmentFrequency, p.CustomFrequencyDays); err != nil {
			return err
		}
		return nil
	case PlanTypeSubscription:
		if p.TrialDays < 0 {
			return fmt.Errorf("trial days must not be negative, got %d", p.TrialDays)
		}
		if p.SubscriptionRule != nil && *p.SubscriptionRule != "" {
			if _, err := rrule.StrToRRule(*p.SubscriptionRule); err != nil {
				return fmt.Errorf("invalid subscription rule: %w", err)
			}
			return nil
		}
		if err := validFrequency(p.SubscriptionFrequency, p.CustomFrequencyDays); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown plan type %q", p.PlanType)
	}
}

func validFrequency(f InstallmentFrequency, customDays int) error {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return nil
	case FrequencyCustom:
		if customDays < 1 {
			return fmt.Errorf("custom frequency requires a positive day count, got %d", customDays)
		}
		return nil
	default:
		return fmt.Errorf("unknown frequency %q", f)
	}
}

// NextOccurrence returns the due date of the period following `after` for a
// subscription plan, preferring the plan's RRULE when one parses.
func (p PaymentPlan) NextOccurrence(after time.Time) time.Time {
	if p.SubscriptionRule != nil && *p.SubscriptionRule != "" {
		rule, err := rrule.StrToRRule(*p.SubscriptionRule)
		if err == nil {
			rule.DTStart(after)
			next := rule.After(after, false)
			if !next.IsZero() {
				return next
			}
		}
	}
	return AdvanceByFrequency(after, p.SubscriptionFrequency, p.CustomFrequencyDays)
}

// AdvanceByFrequency moves a date forward by one period. Monthly uses a
// calendar-month increment, the rest are fixed day counts.
func AdvanceByFrequency(from time.Time, f InstallmentFrequency, customDays int) time.Time {
	switch f {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyCustom:
		return from.AddDate(0, 0, customDays)
	default:
		return from.AddDate(0, 1, 0)
	}
}
