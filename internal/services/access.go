package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/timepolicy"
)

// Access denial reasons.
const (
	ReasonEnrollmentInactive = "enrollment_inactive"
	ReasonPaymentOverdue     = "payment_overdue"
)

const accessCacheTTL = 30 * time.Second

// AccessDecision is the answer to "may this enrollment see paid content".
type AccessDecision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	OverdueDays   int    `json:"overdue_days,omitempty"`
	OverdueAmount int64  `json:"overdue_amount,omitempty"`
}

// AccessService answers access checks from a single read of the enrollment
// and its obligations. Decisions are cached briefly in Redis; every ledger
// mutation invalidates the cached entry, so the fast path never blocks on the
// sweeper or a restructure.
type AccessService struct {
	db     *gorm.DB
	cache  *RedisCache
	policy timepolicy.Policy
}

func NewAccessService(db *gorm.DB, cache *RedisCache, policy timepolicy.Policy) *AccessService {
	return &AccessService{db: db, cache: cache, policy: policy}
}

// HasAccess decides access for the enrollment at time.Now.
func (s *AccessService) HasAccess(ctx context.Context, enrollmentID uint) (AccessDecision, error) {
	if s.cache == nil {
		return s.decide(ctx, enrollmentID, time.Now())
	}
	return GetOrSet(s.cache, ctx, accessCacheKey(enrollmentID), accessCacheTTL, func() (AccessDecision, error) {
		return s.decide(ctx, enrollmentID, time.Now())
	})
}

func (s *AccessService) decide(ctx context.Context, enrollmentID uint, now time.Time) (AccessDecision, error) {
	var enrollment models.Enrollment
	err := s.db.WithContext(ctx).Preload("Obligations").First(&enrollment, enrollmentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return AccessDecision{}, apperrors.NotFoundf("enrollment %d", enrollmentID)
		}
		return AccessDecision{}, err
	}
	return Decide(enrollment, enrollment.Obligations, now, s.policy), nil
}

// Decide is the pure access rule: active or completed enrollments have access
// unless an unpaid obligation has outlived its grace period. An obligation
// due exactly GracePeriodDays ago is still within grace.
func Decide(enrollment models.Enrollment, obligations []models.PaymentObligation, now time.Time, policy timepolicy.Policy) AccessDecision {
	if enrollment.Status != models.EnrollmentStatusActive && enrollment.Status != models.EnrollmentStatusCompleted {
		return AccessDecision{Allowed: false, Reason: ReasonEnrollmentInactive}
	}

	var overdueAmount int64
	var oldestDue time.Time
	for _, ob := range obligations {
		if !isOverdueCandidate(ob.Status) {
			continue
		}
		if !policy.IsOverdue(ob.OriginalDueDate, now) {
			continue
		}
		overdueAmount += ob.Amount
		if oldestDue.IsZero() || ob.OriginalDueDate.Before(oldestDue) {
			oldestDue = ob.OriginalDueDate
		}
	}
	if overdueAmount > 0 {
		return AccessDecision{
			Allowed:       false,
			Reason:        ReasonPaymentOverdue,
			OverdueDays:   policy.OverdueDays(oldestDue, now),
			OverdueAmount: overdueAmount,
		}
	}
	return AccessDecision{Allowed: true}
}

func isOverdueCandidate(status models.ObligationStatus) bool {
	for _, s := range overdueCandidateStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func accessCacheKey(enrollmentID uint) string {
	return fmt.Sprintf("access:enrollment:%d", enrollmentID)
}

// invalidateAccessCache drops the cached decision after any mutation that can
// change it. Safe with a nil cache.
func invalidateAccessCache(ctx context.Context, cache *RedisCache, enrollmentID uint) {
	if cache == nil {
		return
	}
	_ = cache.Delete(ctx, accessCacheKey(enrollmentID))
}
