package services

import (
	"context"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"enrollpay_echo/internal/events"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/timepolicy"
)

const (
	sweeperLockKey = "sweeper:lock"
	sweeperLockTTL = 10 * time.Minute
)

// SweeperService is the periodic job that suspends enrollments whose payments
// are overdue beyond grace. It shares the overdue definition with the access
// gate through timepolicy, so the two can never disagree.
type SweeperService struct {
	db      *gorm.DB
	cache   *RedisCache
	emitter events.Emitter
	policy  timepolicy.Policy
}

func NewSweeperService(db *gorm.DB, cache *RedisCache, emitter events.Emitter, policy timepolicy.Policy) *SweeperService {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &SweeperService{db: db, cache: cache, emitter: emitter, policy: policy}
}

// Sweep suspends every active enrollment holding an obligation past its grace
// period and emits one enrollment.suspended event per enrollment. Re-running
// is idempotent: the suspension is conditioned on the current status, so an
// already-suspended enrollment yields neither a second transition nor a
// second event. One enrollment's failure never aborts the rest of the sweep.
func (s *SweeperService) Sweep(ctx context.Context, now time.Time) ([]uint, error) {
	if s.cache != nil {
		acquired, err := s.cache.SetNX(ctx, sweeperLockKey, now, sweeperLockTTL)
		if err != nil {
			log.Printf("sweeper: lock check failed, proceeding without lock: %v", err)
		} else if !acquired {
			log.Println("sweeper: another sweep is in progress, skipping")
			return nil, nil
		} else {
			defer func() {
				_ = s.cache.Delete(ctx, sweeperLockKey)
			}()
		}
	}

	var overdue []models.PaymentObligation
	err := s.db.WithContext(ctx).
		Where("status IN ?", overdueCandidateStatuses).
		Find(&overdue).Error
	if err != nil {
		return nil, err
	}

	byEnrollment := make(map[uint][]models.PaymentObligation)
	for _, ob := range overdue {
		if !s.policy.IsOverdue(ob.OriginalDueDate, now) {
			continue
		}
		byEnrollment[ob.EnrollmentID] = append(byEnrollment[ob.EnrollmentID], ob)
	}

	ids := make([]uint, 0, len(byEnrollment))
	for id := range byEnrollment {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var suspended []uint
	for _, enrollmentID := range ids {
		if ctx.Err() != nil {
			return suspended, ctx.Err()
		}
		ok, err := s.suspendEnrollment(ctx, enrollmentID, byEnrollment[enrollmentID], now)
		if err != nil {
			log.Printf("sweeper: failed to process enrollment %d: %v", enrollmentID, err)
			continue
		}
		if ok {
			suspended = append(suspended, enrollmentID)
		}
	}
	return suspended, nil
}

func (s *SweeperService) suspendEnrollment(ctx context.Context, enrollmentID uint, overdue []models.PaymentObligation, now time.Time) (bool, error) {
	var enrollment models.Enrollment
	if err := s.db.WithContext(ctx).First(&enrollment, enrollmentID).Error; err != nil {
		return false, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return false, nil
	}

	// Conditioning the update on the current status makes overlapping sweeps
	// idempotent: only one of them flips the row.
	res := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", enrollmentID, models.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"status":           models.EnrollmentStatusSuspended,
			"suspended_reason": models.SuspendedReasonPaymentOverdue,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	invalidateAccessCache(ctx, s.cache, enrollmentID)

	var amount int64
	for _, ob := range overdue {
		amount += ob.Amount
	}
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TypeEnrollmentSuspended,
		EnrollmentID: enrollmentID,
		UserID:       enrollment.UserID,
		Amount:       amount,
		Currency:     enrollment.Currency,
		Reason:       models.SuspendedReasonPaymentOverdue,
		OccurredAt:   now,
	})
	return true, nil
}
