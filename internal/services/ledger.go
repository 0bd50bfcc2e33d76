package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/schedule"
	"enrollpay_echo/internal/timepolicy"
)

// overdueCandidateStatuses are the obligation states that can make an
// enrollment overdue. Paused and adjusted obligations are deliberate
// operator interventions and never trip the gate or the sweeper.
var overdueCandidateStatuses = []models.ObligationStatus{
	models.ObligationStatusPending,
	models.ObligationStatusFailed,
}

// LedgerService owns the obligation set of an enrollment: schedule creation,
// charge-outcome and refund application, and the pause/resume operator
// controls. All mutations for one enrollment are serialized through the
// enrollment's optimistic version counter.
type LedgerService struct {
	db     *gorm.DB
	cache  *RedisCache
	policy timepolicy.Policy
}

func NewLedgerService(db *gorm.DB, cache *RedisCache, policy timepolicy.Policy) *LedgerService {
	return &LedgerService{db: db, cache: cache, policy: policy}
}

// ChargeOutcome is one settled gateway attempt reported by the charge
// service. EventID is the upstream event ID and the idempotency key.
type ChargeOutcome struct {
	ObligationID    uint
	Success         bool
	PaymentIntentID string
	EventID         string
	FailureCode     string
	Channel         string
	Gateway         models.PaymentGateway
	Timestamp       time.Time
}

// RefundEvent is an inbound refund notification for a completed payment.
type RefundEvent struct {
	PaymentID uint
	Amount    int64
	Reason    string
	EventID   string
	Timestamp time.Time
}

// CreateSchedule generates and persists the obligation set for an enrollment
// from its plan. A zero total auto-completes the enrollment with no
// obligations; otherwise the enrollment becomes active.
func (s *LedgerService) CreateSchedule(ctx context.Context, enrollmentID uint, totalAmount int64, currency string, planID uint, startDate time.Time) (*models.Enrollment, error) {
	var plan models.PaymentPlan
	if err := s.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFoundf("payment plan %d", planID)
		}
		return nil, err
	}

	obligations, err := schedule.Generate(totalAmount, currency, plan, startDate)
	if err != nil {
		return nil, err
	}

	var enrollment models.Enrollment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFoundf("enrollment %d", enrollmentID)
			}
			return err
		}
		var existing int64
		if err := tx.Model(&models.PaymentObligation{}).
			Where("enrollment_id = ?", enrollmentID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return apperrors.Validationf("enrollment %d already has a schedule", enrollmentID)
		}

		status := models.EnrollmentStatusActive
		if len(obligations) == 0 {
			status = models.EnrollmentStatusCompleted
		}
		for i := range obligations {
			obligations[i].EnrollmentID = enrollmentID
		}
		if len(obligations) > 0 {
			if err := tx.Create(&obligations).Error; err != nil {
				return err
			}
		}

		if err := bumpEnrollmentVersion(tx, &enrollment, map[string]interface{}{
			"plan_id":      planID,
			"total_amount": totalAmount,
			"currency":     currency,
			"status":       status,
		}); err != nil {
			return err
		}
		enrollment.PlanID = planID
		enrollment.TotalAmount = totalAmount
		enrollment.Currency = currency
		enrollment.Status = status

		return verifyConservation(tx, enrollmentID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAccess(ctx, enrollmentID)
	enrollment.Obligations = obligations
	return &enrollment, nil
}

// RecordChargeOutcome applies a success or failure reported by the charge
// service. Replays of an already-applied event are no-ops; outcomes for a
// payment intent that already settled are likewise ignored.
func (s *LedgerService) RecordChargeOutcome(ctx context.Context, oc ChargeOutcome) error {
	if oc.EventID == "" || oc.PaymentIntentID == "" {
		return apperrors.Validationf("charge outcome requires an event ID and payment intent ID")
	}

	eventType := models.ChargeEventFailure
	if oc.Success {
		eventType = models.ChargeEventSuccess
	}

	var enrollmentID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := eventApplied(tx, oc.EventID, oc.PaymentIntentID, eventType)
		if err != nil || applied {
			return err
		}

		var ob models.PaymentObligation
		if err := tx.First(&ob, oc.ObligationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFoundf("obligation %d", oc.ObligationID)
			}
			return err
		}
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, ob.EnrollmentID).Error; err != nil {
			return err
		}
		enrollmentID = enrollment.ID

		event := models.ChargeEvent{
			EventID:         oc.EventID,
			EventType:       eventType,
			PaymentIntentID: oc.PaymentIntentID,
			EnrollmentID:    enrollment.ID,
			ObligationID:    ob.ID,
			OccurredAt:      oc.Timestamp,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		// A late outcome for an obligation that already settled carries no new
		// information; the event record alone is persisted.
		if ob.Status == models.ObligationStatusPaid || ob.Status == models.ObligationStatusRefunded ||
			ob.Status == models.ObligationStatusCancelled {
			return nil
		}

		if oc.Success {
			if err := s.applySuccess(tx, &enrollment, &ob, oc); err != nil {
				return err
			}
		} else {
			if err := s.applyFailure(tx, &enrollment, &ob, oc); err != nil {
				return err
			}
		}

		if err := bumpEnrollmentVersion(tx, &enrollment, nil); err != nil {
			return err
		}
		return verifyConservation(tx, enrollment.ID)
	})
	if err != nil {
		return err
	}

	if enrollmentID != 0 {
		s.invalidateAccess(ctx, enrollmentID)
	}
	return nil
}

func (s *LedgerService) applySuccess(tx *gorm.DB, enrollment *models.Enrollment, ob *models.PaymentObligation, oc ChargeOutcome) error {
	paidAt := oc.Timestamp
	if err := tx.Model(ob).Updates(map[string]interface{}{
		"status":          models.ObligationStatusPaid,
		"paid_date":       &paidAt,
		"next_retry_date": nil,
	}).Error; err != nil {
		return err
	}
	ob.Status = models.ObligationStatusPaid

	payment := models.Payment{
		EnrollmentID:    enrollment.ID,
		ObligationID:    ob.ID,
		PaymentIntentID: oc.PaymentIntentID,
		Status:          models.PaymentStatusCompleted,
		Amount:          ob.Amount,
		Currency:        ob.Currency,
		PaymentGateway:  oc.Gateway,
		ChannelPayment:  oc.Channel,
		PaymentDate:     &paidAt,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.ChargeSession{}).
		Where("obligation_id = ? AND is_active = ?", ob.ID, true).
		Update("is_active", false).Error; err != nil {
		return err
	}

	return s.settleEnrollmentStatus(tx, enrollment, oc.Timestamp)
}

func (s *LedgerService) applyFailure(tx *gorm.DB, enrollment *models.Enrollment, ob *models.PaymentObligation, oc ChargeOutcome) error {
	payment := models.Payment{
		EnrollmentID:    enrollment.ID,
		ObligationID:    ob.ID,
		PaymentIntentID: oc.PaymentIntentID,
		Status:          models.PaymentStatusFailed,
		Amount:          ob.Amount,
		Currency:        ob.Currency,
		PaymentGateway:  oc.Gateway,
		ChannelPayment:  oc.Channel,
		FailureCode:     oc.FailureCode,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return err
	}

	next := s.policy.NextRetryAt(ob.RetryCount, oc.Timestamp)
	updates := map[string]interface{}{
		"status":          models.ObligationStatusFailed,
		"retry_count":     ob.RetryCount + 1,
		"next_retry_date": next,
	}
	if err := tx.Model(ob).Updates(updates).Error; err != nil {
		return err
	}
	ob.Status = models.ObligationStatusFailed
	ob.RetryCount++
	ob.NextRetryDate = next
	if next == nil {
		// Retries exhausted; the obligation stays failed and is surfaced to
		// operators via the overdue flows.
		log.Printf("ledger: obligation %d (enrollment %d) exhausted retries", ob.ID, enrollment.ID)
	}
	return nil
}

// settleEnrollmentStatus completes the enrollment when nothing is left owed,
// and lifts a payment_overdue suspension once no overdue obligations remain.
func (s *LedgerService) settleEnrollmentStatus(tx *gorm.DB, enrollment *models.Enrollment, now time.Time) error {
	var open []models.PaymentObligation
	if err := tx.Where("enrollment_id = ? AND status IN ?", enrollment.ID, []models.ObligationStatus{
		models.ObligationStatusPending,
		models.ObligationStatusProcessing,
		models.ObligationStatusFailed,
		models.ObligationStatusPaused,
		models.ObligationStatusAdjusted,
	}).Find(&open).Error; err != nil {
		return err
	}

	if len(open) == 0 {
		if enrollment.Status == models.EnrollmentStatusCompleted {
			return nil
		}
		if !models.CanTransition(enrollment.Status, models.EnrollmentStatusCompleted) {
			return nil
		}
		enrollment.Status = models.EnrollmentStatusCompleted
		enrollment.SuspendedReason = ""
		return tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
			Updates(map[string]interface{}{"status": enrollment.Status, "suspended_reason": ""}).Error
	}

	if enrollment.Status == models.EnrollmentStatusSuspended && enrollment.SuspendedReason == models.SuspendedReasonPaymentOverdue {
		for _, ob := range open {
			if s.policy.IsOverdue(ob.OriginalDueDate, now) &&
				(ob.Status == models.ObligationStatusPending || ob.Status == models.ObligationStatusFailed) {
				return nil
			}
		}
		enrollment.Status = models.EnrollmentStatusActive
		enrollment.SuspendedReason = ""
		return tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
			Updates(map[string]interface{}{"status": enrollment.Status, "suspended_reason": ""}).Error
	}
	return nil
}

// RecordRefund applies a refund to a completed payment. Idempotent by the
// upstream event ID; the same refund applied twice subtracts once.
func (s *LedgerService) RecordRefund(ctx context.Context, ev RefundEvent) error {
	if ev.EventID == "" {
		return apperrors.Validationf("refund requires an event ID")
	}
	if ev.Amount <= 0 {
		return apperrors.Validationf("refund amount must be positive, got %d", ev.Amount)
	}

	var enrollmentID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := eventApplied(tx, ev.EventID, "", "")
		if err != nil || applied {
			return err
		}

		var payment models.Payment
		if err := tx.First(&payment, ev.PaymentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFoundf("payment %d", ev.PaymentID)
			}
			return err
		}
		if payment.Status != models.PaymentStatusCompleted && payment.Status != models.PaymentStatusRefunded {
			return apperrors.Validationf("payment %d is %s, only completed payments can be refunded", payment.ID, payment.Status)
		}
		if payment.RefundedAmount+ev.Amount > payment.Amount {
			return apperrors.Validationf("refund of %d exceeds remaining refundable %d on payment %d",
				ev.Amount, payment.Amount-payment.RefundedAmount, payment.ID)
		}

		var ob models.PaymentObligation
		if err := tx.First(&ob, payment.ObligationID).Error; err != nil {
			return err
		}
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, payment.EnrollmentID).Error; err != nil {
			return err
		}
		enrollmentID = enrollment.ID

		event := models.ChargeEvent{
			EventID:         ev.EventID,
			EventType:       models.ChargeEventRefund,
			PaymentIntentID: payment.PaymentIntentID,
			EnrollmentID:    enrollment.ID,
			ObligationID:    ob.ID,
			OccurredAt:      ev.Timestamp,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		refundedAt := ev.Timestamp
		payment.RefundedAmount += ev.Amount
		paymentUpdates := map[string]interface{}{
			"refunded_amount": payment.RefundedAmount,
			"refund_reason":   ev.Reason,
			"refunded_at":     &refundedAt,
		}
		if payment.RefundedAmount == payment.Amount {
			paymentUpdates["status"] = models.PaymentStatusRefunded
		}
		if err := tx.Model(&payment).Updates(paymentUpdates).Error; err != nil {
			return err
		}

		// The obligation only changes status on a full refund; a partial
		// refund is visible on the payment record alone, keeping obligation
		// sums conserved for reporting.
		obUpdates := map[string]interface{}{
			"refunded_amount": ob.RefundedAmount + ev.Amount,
		}
		if ob.RefundedAmount+ev.Amount >= ob.Amount {
			obUpdates["status"] = models.ObligationStatusRefunded
			obUpdates["refunded_at"] = &refundedAt
		}
		if err := tx.Model(&ob).Updates(obUpdates).Error; err != nil {
			return err
		}

		if err := bumpEnrollmentVersion(tx, &enrollment, nil); err != nil {
			return err
		}
		return verifyConservation(tx, enrollment.ID)
	})
	if err != nil {
		return err
	}

	if enrollmentID != 0 {
		s.invalidateAccess(ctx, enrollmentID)
	}
	return nil
}

// PauseObligation parks a pending obligation so the overdue flows skip it.
func (s *LedgerService) PauseObligation(ctx context.Context, obligationID uint, actor, reason string) error {
	return s.transitionObligation(ctx, obligationID, models.ObligationStatusPending,
		models.ObligationStatusPaused, models.AdjustmentActionPause, actor, reason)
}

// ResumeObligation returns a paused obligation to the pending pool.
func (s *LedgerService) ResumeObligation(ctx context.Context, obligationID uint, actor, reason string) error {
	return s.transitionObligation(ctx, obligationID, models.ObligationStatusPaused,
		models.ObligationStatusPending, models.AdjustmentActionResume, actor, reason)
}

func (s *LedgerService) transitionObligation(ctx context.Context, obligationID uint, from, to models.ObligationStatus, action, actor, reason string) error {
	if actor == "" {
		return apperrors.Validationf("actor is required")
	}
	var enrollmentID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ob models.PaymentObligation
		if err := tx.First(&ob, obligationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFoundf("obligation %d", obligationID)
			}
			return err
		}
		if ob.Status != from {
			return apperrors.Validationf("obligation %d is %s, expected %s", ob.ID, ob.Status, from)
		}
		var enrollment models.Enrollment
		if err := tx.First(&enrollment, ob.EnrollmentID).Error; err != nil {
			return err
		}
		enrollmentID = enrollment.ID

		if err := tx.Model(&ob).Update("status", to).Error; err != nil {
			return err
		}
		adj := models.ObligationAdjustment{
			ObligationID: ob.ID,
			EnrollmentID: enrollment.ID,
			Actor:        actor,
			Action:       action,
			Reason:       reason,
			Before:       map[string]interface{}{"status": string(from)},
			After:        map[string]interface{}{"status": string(to)},
		}
		if err := tx.Create(&adj).Error; err != nil {
			return err
		}
		return bumpEnrollmentVersion(tx, &enrollment, nil)
	})
	if err != nil {
		return err
	}
	if enrollmentID != 0 {
		s.invalidateAccess(ctx, enrollmentID)
	}
	return nil
}

// PaidAmount returns the sum of obligations currently in paid status.
// Refunded obligations drop out, so this is already net of full refunds.
func (s *LedgerService) PaidAmount(ctx context.Context, enrollmentID uint) (int64, error) {
	return sumObligations(s.db.WithContext(ctx), enrollmentID, []models.ObligationStatus{models.ObligationStatusPaid})
}

// RemainingBalance returns totalAmount minus the paid amount.
func (s *LedgerService) RemainingBalance(ctx context.Context, enrollmentID uint) (int64, error) {
	var enrollment models.Enrollment
	if err := s.db.WithContext(ctx).First(&enrollment, enrollmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, apperrors.NotFoundf("enrollment %d", enrollmentID)
		}
		return 0, err
	}
	paid, err := s.PaidAmount(ctx, enrollmentID)
	if err != nil {
		return 0, err
	}
	return enrollment.TotalAmount - paid, nil
}

func (s *LedgerService) invalidateAccess(ctx context.Context, enrollmentID uint) {
	invalidateAccessCache(ctx, s.cache, enrollmentID)
}

// eventApplied reports whether an inbound event was already applied, either by
// exact event ID or, for charge outcomes, by the (intent, type) pair.
func eventApplied(tx *gorm.DB, eventID, intentID string, eventType models.ChargeEventType) (bool, error) {
	var count int64
	if err := tx.Model(&models.ChargeEvent{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if intentID != "" && eventType != models.ChargeEventRefund && eventType != "" {
		if err := tx.Model(&models.ChargeEvent{}).
			Where("payment_intent_id = ? AND event_type = ?", intentID, eventType).
			Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func sumObligations(db *gorm.DB, enrollmentID uint, statuses []models.ObligationStatus) (int64, error) {
	var sum int64
	err := db.Model(&models.PaymentObligation{}).
		Where("enrollment_id = ? AND status IN ?", enrollmentID, statuses).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error
	return sum, err
}

// bumpEnrollmentVersion applies updates to the enrollment conditioned on the
// version read earlier. Zero rows affected means someone else mutated the
// enrollment in between; the caller's transaction aborts with a conflict.
func bumpEnrollmentVersion(tx *gorm.DB, enrollment *models.Enrollment, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["version"] = enrollment.Version + 1
	res := tx.Model(&models.Enrollment{}).
		Where("id = ? AND version = ?", enrollment.ID, enrollment.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflictf("enrollment %d was modified concurrently", enrollment.ID)
	}
	enrollment.Version++
	return nil
}

// verifyConservation checks that non-cancelled obligation amounts still sum
// to the enrollment total. A mismatch is a bug; the surrounding transaction
// rolls back rather than persisting a broken ledger. Open-ended subscription
// schedules are exempt, their obligations are per-period prices.
func verifyConservation(tx *gorm.DB, enrollmentID uint) error {
	var enrollment models.Enrollment
	if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
		return err
	}
	if enrollment.PlanID != 0 {
		var plan models.PaymentPlan
		if err := tx.First(&plan, enrollment.PlanID).Error; err == nil &&
			plan.PlanType == models.PlanTypeSubscription {
			return nil
		}
	}

	var sum int64
	err := tx.Model(&models.PaymentObligation{}).
		Where("enrollment_id = ? AND status != ?", enrollmentID, models.ObligationStatusCancelled).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error
	if err != nil {
		return err
	}
	if sum != enrollment.TotalAmount {
		log.Printf("CRITICAL: money conservation broken for enrollment %d: obligations sum %d, total %d",
			enrollmentID, sum, enrollment.TotalAmount)
		return apperrors.Invariantf("enrollment %d: obligations sum %d != total %d", enrollmentID, sum, enrollment.TotalAmount)
	}
	return nil
}
