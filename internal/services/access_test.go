package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/timepolicy"
)

func TestDecide(t *testing.T) {
	policy := timepolicy.Default()
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	active := models.Enrollment{Status: models.EnrollmentStatusActive}
	pending := func(amount int64, due time.Time) models.PaymentObligation {
		return models.PaymentObligation{Status: models.ObligationStatusPending, Amount: amount, OriginalDueDate: due}
	}

	tests := []struct {
		name        string
		enrollment  models.Enrollment
		obligations []models.PaymentObligation
		want        AccessDecision
	}{
		{
			name:       "active with nothing due",
			enrollment: active,
			obligations: []models.PaymentObligation{
				pending(500, now.AddDate(0, 1, 0)),
			},
			want: AccessDecision{Allowed: true},
		},
		{
			name:        "completed with no obligations",
			enrollment:  models.Enrollment{Status: models.EnrollmentStatusCompleted},
			obligations: nil,
			want:        AccessDecision{Allowed: true},
		},
		{
			name:       "suspended enrollment denied regardless of obligations",
			enrollment: models.Enrollment{Status: models.EnrollmentStatusSuspended},
			want:       AccessDecision{Allowed: false, Reason: ReasonEnrollmentInactive},
		},
		{
			name:       "draft enrollment denied",
			enrollment: models.Enrollment{Status: models.EnrollmentStatusDraft},
			want:       AccessDecision{Allowed: false, Reason: ReasonEnrollmentInactive},
		},
		{
			name:       "exactly at the grace boundary still allowed",
			enrollment: active,
			obligations: []models.PaymentObligation{
				pending(500, now.AddDate(0, 0, -7)),
			},
			want: AccessDecision{Allowed: true},
		},
		{
			name:       "one day past grace denied",
			enrollment: active,
			obligations: []models.PaymentObligation{
				pending(500, now.AddDate(0, 0, -8)),
			},
			want: AccessDecision{Allowed: false, Reason: ReasonPaymentOverdue, OverdueDays: 8, OverdueAmount: 500},
		},
		{
			name:       "overdue amounts accumulate and days track the oldest",
			enrollment: active,
			obligations: []models.PaymentObligation{
				pending(300, now.AddDate(0, 0, -20)),
				pending(200, now.AddDate(0, 0, -10)),
				pending(100, now.AddDate(0, 0, -2)), // within grace
			},
			want: AccessDecision{Allowed: false, Reason: ReasonPaymentOverdue, OverdueDays: 20, OverdueAmount: 500},
		},
		{
			name:       "failed obligations count as overdue candidates",
			enrollment: active,
			obligations: []models.PaymentObligation{
				{Status: models.ObligationStatusFailed, Amount: 400, OriginalDueDate: now.AddDate(0, 0, -15)},
			},
			want: AccessDecision{Allowed: false, Reason: ReasonPaymentOverdue, OverdueDays: 15, OverdueAmount: 400},
		},
		{
			name:       "paused obligations never trip the gate",
			enrollment: active,
			obligations: []models.PaymentObligation{
				{Status: models.ObligationStatusPaused, Amount: 400, OriginalDueDate: now.AddDate(0, -2, 0)},
			},
			want: AccessDecision{Allowed: true},
		},
		{
			name:       "cancelled and paid obligations ignored",
			enrollment: active,
			obligations: []models.PaymentObligation{
				{Status: models.ObligationStatusPaid, Amount: 400, OriginalDueDate: now.AddDate(0, -2, 0)},
				{Status: models.ObligationStatusCancelled, Amount: 400, OriginalDueDate: now.AddDate(0, -2, 0)},
			},
			want: AccessDecision{Allowed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.enrollment, tt.obligations, now, policy)
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHasAccess(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAccessService(db, nil, timepolicy.Default())
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 2)

	enrollment := createEnrollment(t, db, models.Enrollment{
		UserID: 1, Status: models.EnrollmentStatusActive, TotalAmount: 1000, Currency: "USD",
		PlanID: plan.ID,
	})
	seedObligations(t, db, enrollment.ID, []int64{500, 500})

	decision, err := svc.HasAccess(ctx, enrollment.ID)
	if err != nil {
		t.Fatalf("HasAccess: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("access denied for current obligations: %+v", decision)
	}

	// Push the first obligation past grace.
	if err := db.Model(&models.PaymentObligation{}).
		Where("enrollment_id = ? AND payment_number = ?", enrollment.ID, 1).
		Update("original_due_date", testNow.AddDate(0, 0, -10)).Error; err != nil {
		t.Fatal(err)
	}
	decision, err = svc.HasAccess(ctx, enrollment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed || decision.Reason != ReasonPaymentOverdue {
		t.Errorf("got %+v, want overdue denial", decision)
	}
	if decision.OverdueAmount != 500 {
		t.Errorf("overdue amount %d, want 500", decision.OverdueAmount)
	}

	if _, err := svc.HasAccess(ctx, 9999); !apperrors.IsNotFound(err) {
		t.Errorf("missing enrollment: got %v, want not found", err)
	}
}

func TestHasAccessCachesDecision(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("connect cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	svc := NewAccessService(db, cache, timepolicy.Default())
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 2)
	enrollment := createEnrollment(t, db, models.Enrollment{
		UserID: 1, Status: models.EnrollmentStatusActive, TotalAmount: 1000, Currency: "USD",
		PlanID: plan.ID,
	})
	seedObligations(t, db, enrollment.ID, []int64{500, 500})

	decision, err := svc.HasAccess(ctx, enrollment.ID)
	if err != nil {
		t.Fatalf("HasAccess: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("access denied for current obligations: %+v", decision)
	}

	// The ledger went overdue out of band, but the cached decision is still
	// inside its TTL and must be served as-is.
	if err := db.Model(&models.PaymentObligation{}).
		Where("enrollment_id = ? AND payment_number = ?", enrollment.ID, 1).
		Update("original_due_date", testNow.AddDate(0, 0, -10)).Error; err != nil {
		t.Fatal(err)
	}
	decision, err = svc.HasAccess(ctx, enrollment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Errorf("cached decision not served: %+v", decision)
	}

	// Invalidation forces the next check back to the ledger.
	invalidateAccessCache(ctx, cache, enrollment.ID)
	decision, err = svc.HasAccess(ctx, enrollment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed || decision.Reason != ReasonPaymentOverdue {
		t.Errorf("got %+v, want overdue denial after invalidation", decision)
	}
}
