package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/schedule"
)

// RestructureResult summarizes one restructure operation.
type RestructureResult struct {
	EnrollmentID         uint  `json:"enrollment_id"`
	CancelledCount       int   `json:"cancelled_count"`
	CreatedCount         int   `json:"created_count"`
	NewInstallmentAmount int64 `json:"new_installment_amount"`
	RemainingBalance     int64 `json:"remaining_balance"`
}

// RestructureService replaces the unpaid tail of a schedule with a new
// monthly installment run. The whole operation is one transaction: a ledger
// reader can never observe obligations cancelled but not yet replaced.
type RestructureService struct {
	db    *gorm.DB
	cache *RedisCache
}

func NewRestructureService(db *gorm.DB, cache *RedisCache) *RestructureService {
	return &RestructureService{db: db, cache: cache}
}

// statuses swept up by a restructure. Paid, refunded, paused, in-flight and
// already-cancelled obligations are never touched.
var restructureCancellable = []models.ObligationStatus{
	models.ObligationStatusPending,
	models.ObligationStatusFailed,
	models.ObligationStatusAdjusted,
}

func cancellableForRestructure(status models.ObligationStatus) bool {
	for _, s := range restructureCancellable {
		if s == status {
			return true
		}
	}
	return false
}

// Restructure cancels the open tail and regenerates it as newCount monthly
// installments starting at newStartDate, using the same integer-cent
// remainder rule as initial generation.
func (s *RestructureService) Restructure(ctx context.Context, enrollmentID uint, newCount int, newStartDate time.Time, reason, actor string) (*RestructureResult, error) {
	if newCount < 1 {
		return nil, apperrors.Validationf("new installment count must be >= 1, got %d", newCount)
	}
	if reason == "" || actor == "" {
		return nil, apperrors.Validationf("reason and actor are required for audit")
	}

	var result RestructureResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFoundf("enrollment %d", enrollmentID)
			}
			return err
		}

		var obligations []models.PaymentObligation
		if err := tx.Where("enrollment_id = ?", enrollmentID).
			Order("payment_number asc").Find(&obligations).Error; err != nil {
			return err
		}

		// Everything that stays on the books keeps its share of the total
		// and its payment number; the regenerated tail covers exactly the
		// rest and is numbered after the highest retained slot. Paused
		// obligations are retained as a deliberate operator hold, and
		// in-flight ones settle through the gateway callback first.
		var retainedAmount int64
		var maxRetainedNumber int
		var toCancel []models.PaymentObligation
		for _, ob := range obligations {
			if ob.Status == models.ObligationStatusCancelled {
				continue
			}
			if cancellableForRestructure(ob.Status) {
				toCancel = append(toCancel, ob)
				continue
			}
			retainedAmount += ob.Amount
			if ob.PaymentNumber > maxRetainedNumber {
				maxRetainedNumber = ob.PaymentNumber
			}
		}

		remaining := enrollment.TotalAmount - retainedAmount
		if remaining <= 0 {
			return apperrors.Validationf("enrollment %d has no remaining balance to restructure", enrollmentID)
		}

		for _, ob := range toCancel {
			if err := tx.Model(&models.PaymentObligation{}).Where("id = ?", ob.ID).
				Update("status", models.ObligationStatusCancelled).Error; err != nil {
				return err
			}
			adj := models.ObligationAdjustment{
				ObligationID: ob.ID,
				EnrollmentID: enrollment.ID,
				Actor:        actor,
				Action:       models.AdjustmentActionRestructureCancel,
				Reason:       reason,
				Before:       map[string]interface{}{"status": string(ob.Status), "amount": ob.Amount, "payment_number": ob.PaymentNumber},
				After:        map[string]interface{}{"status": string(models.ObligationStatusCancelled)},
			}
			if err := tx.Create(&adj).Error; err != nil {
				return err
			}
		}

		parts := schedule.SplitEvenly(remaining, newCount)
		due := newStartDate
		created := make([]models.PaymentObligation, 0, newCount)
		for i, amount := range parts {
			created = append(created, models.PaymentObligation{
				EnrollmentID:    enrollment.ID,
				PaymentNumber:   maxRetainedNumber + i + 1,
				PaymentType:     models.PaymentTypeInstallment,
				Amount:          amount,
				Currency:        enrollment.Currency,
				OriginalDueDate: due,
				ScheduledDate:   due,
				Status:          models.ObligationStatusPending,
			})
			due = due.AddDate(0, 1, 0)
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		for _, ob := range created {
			adj := models.ObligationAdjustment{
				ObligationID: ob.ID,
				EnrollmentID: enrollment.ID,
				Actor:        actor,
				Action:       models.AdjustmentActionRestructureCreate,
				Reason:       reason,
				Before: map[string]interface{}{
					"cancelled_count": len(toCancel),
					"retained_amount": retainedAmount,
				},
				After: map[string]interface{}{
					"amount":         ob.Amount,
					"payment_number": ob.PaymentNumber,
					"due_date":       ob.OriginalDueDate,
				},
			}
			if err := tx.Create(&adj).Error; err != nil {
				return err
			}
		}

		if err := bumpEnrollmentVersion(tx, &enrollment, nil); err != nil {
			return err
		}
		if err := verifyConservation(tx, enrollment.ID); err != nil {
			return err
		}

		result = RestructureResult{
			EnrollmentID:         enrollment.ID,
			CancelledCount:       len(toCancel),
			CreatedCount:         len(created),
			NewInstallmentAmount: parts[0],
			RemainingBalance:     remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateAccessCache(ctx, s.cache, enrollmentID)
	return &result, nil
}
