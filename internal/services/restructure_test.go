package services

import (
	"context"
	"fmt"
	"testing"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/timepolicy"
)

func TestRestructureAfterPartialPayment(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedgerService(db, nil, timepolicy.Default())
	svc := NewRestructureService(db, nil)
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 5)
	enrollment := createEnrollment(t, db, models.Enrollment{UserID: 1, Status: models.EnrollmentStatusDraft})
	if _, err := ledger.CreateSchedule(ctx, enrollment.ID, 1000, "USD", plan.ID, testNow); err != nil {
		t.Fatal(err)
	}
	obs := getObligations(t, db, enrollment.ID)

	// Pay the first two installments (2 x 200).
	for i := 0; i < 2; i++ {
		if err := ledger.RecordChargeOutcome(ctx, ChargeOutcome{
			ObligationID: obs[i].ID, Success: true,
			PaymentIntentID: fmt.Sprintf("rs-intent-%d", i),
			EventID:         fmt.Sprintf("rs-evt-%d", i),
			Gateway:         models.PaymentGatewayManual, Timestamp: testNow,
		}); err != nil {
			t.Fatal(err)
		}
	}

	newStart := testNow.AddDate(0, 1, 0)
	result, err := svc.Restructure(ctx, enrollment.ID, 3, newStart, "monthly amount too high", "admin@example.com")
	if err != nil {
		t.Fatalf("Restructure: %v", err)
	}
	if result.CancelledCount != 3 || result.CreatedCount != 3 {
		t.Errorf("cancelled=%d created=%d, want 3/3", result.CancelledCount, result.CreatedCount)
	}
	if result.RemainingBalance != 600 {
		t.Errorf("remaining balance %d, want 600", result.RemainingBalance)
	}

	all := getObligations(t, db, enrollment.ID)
	var paid, cancelled, pending []models.PaymentObligation
	for _, ob := range all {
		switch ob.Status {
		case models.ObligationStatusPaid:
			paid = append(paid, ob)
		case models.ObligationStatusCancelled:
			cancelled = append(cancelled, ob)
		case models.ObligationStatusPending:
			pending = append(pending, ob)
		}
	}
	if len(paid) != 2 || len(cancelled) != 3 || len(pending) != 3 {
		t.Fatalf("paid=%d cancelled=%d pending=%d, want 2/3/3", len(paid), len(cancelled), len(pending))
	}

	// New tail: 3 x 200, numbered after the two retained payments, monthly
	// from the new start date.
	var liveSum int64 = 0
	for _, ob := range paid {
		liveSum += ob.Amount
	}
	for i, ob := range pending {
		liveSum += ob.Amount
		if ob.Amount != 200 {
			t.Errorf("new installment %d amount %d, want 200", i, ob.Amount)
		}
		if ob.PaymentNumber != 3+i {
			t.Errorf("new installment %d numbered %d, want %d", i, ob.PaymentNumber, 3+i)
		}
		wantDue := newStart.AddDate(0, i, 0)
		if !ob.OriginalDueDate.Equal(wantDue) {
			t.Errorf("new installment %d due %v, want %v", i, ob.OriginalDueDate, wantDue)
		}
	}
	if liveSum != 1000 {
		t.Errorf("live obligations sum %d, want 1000", liveSum)
	}

	// Every cancel and create is audited.
	var audits []models.ObligationAdjustment
	if err := db.Where("enrollment_id = ?", enrollment.ID).Find(&audits).Error; err != nil {
		t.Fatal(err)
	}
	var cancels, creates int
	for _, a := range audits {
		switch a.Action {
		case models.AdjustmentActionRestructureCancel:
			cancels++
		case models.AdjustmentActionRestructureCreate:
			creates++
		}
		if a.Actor != "admin@example.com" {
			t.Errorf("audit actor %q", a.Actor)
		}
	}
	if cancels != 3 || creates != 3 {
		t.Errorf("audit rows cancel=%d create=%d, want 3/3", cancels, creates)
	}
}

func TestRestructureUnevenRemainder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRestructureService(db, nil)
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 2)
	enrollment := createEnrollment(t, db, models.Enrollment{
		UserID: 1, Status: models.EnrollmentStatusActive, TotalAmount: 1001, Currency: "USD",
		PlanID: plan.ID,
	})
	seedObligations(t, db, enrollment.ID, []int64{500, 501})

	result, err := svc.Restructure(ctx, enrollment.ID, 3, testNow, "spread out", "ops")
	if err != nil {
		t.Fatalf("Restructure: %v", err)
	}
	if result.RemainingBalance != 1001 {
		t.Errorf("remaining %d, want 1001", result.RemainingBalance)
	}

	var pending []models.PaymentObligation
	if err := db.Where("enrollment_id = ? AND status = ?", enrollment.ID, models.ObligationStatusPending).
		Order("payment_number asc").Find(&pending).Error; err != nil {
		t.Fatal(err)
	}
	want := []int64{333, 333, 335}
	var sum int64
	for i, ob := range pending {
		sum += ob.Amount
		if ob.Amount != want[i] {
			t.Errorf("installment %d amount %d, want %d", i, ob.Amount, want[i])
		}
	}
	if sum != 1001 {
		t.Errorf("new tail sums to %d, want 1001", sum)
	}
}

func TestRestructureRetainsPausedObligations(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRestructureService(db, nil)
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 4)
	enrollment := createEnrollment(t, db, models.Enrollment{
		UserID: 1, Status: models.EnrollmentStatusActive, TotalAmount: 1000, Currency: "USD",
		PlanID: plan.ID,
	})
	ids := seedObligations(t, db, enrollment.ID, []int64{250, 250, 250, 250})
	mustUpdateStatus(t, db, ids[0], models.ObligationStatusPaid)
	mustUpdateStatus(t, db, ids[1], models.ObligationStatusPaused)

	result, err := svc.Restructure(ctx, enrollment.ID, 2, testNow, "rework tail", "ops")
	if err != nil {
		t.Fatalf("Restructure: %v", err)
	}
	// Paid and paused are retained; only the two open installments regenerate.
	if result.CancelledCount != 2 || result.RemainingBalance != 500 {
		t.Errorf("cancelled=%d remaining=%d, want 2/500", result.CancelledCount, result.RemainingBalance)
	}

	var paused models.PaymentObligation
	if err := db.First(&paused, ids[1]).Error; err != nil {
		t.Fatal(err)
	}
	if paused.Status != models.ObligationStatusPaused {
		t.Errorf("paused obligation became %q", paused.Status)
	}

	var pending []models.PaymentObligation
	if err := db.Where("enrollment_id = ? AND status = ?", enrollment.ID, models.ObligationStatusPending).
		Order("payment_number asc").Find(&pending).Error; err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending count %d, want 2", len(pending))
	}
	// Numbering starts after both retained obligations.
	if pending[0].PaymentNumber != 3 || pending[1].PaymentNumber != 4 {
		t.Errorf("numbers %d, %d, want 3, 4", pending[0].PaymentNumber, pending[1].PaymentNumber)
	}
}

func TestRestructureNumbersAfterHighestRetained(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRestructureService(db, nil)
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 3)
	enrollment := createEnrollment(t, db, models.Enrollment{
		UserID: 1, Status: models.EnrollmentStatusActive, TotalAmount: 500, Currency: "USD",
		PlanID: plan.ID,
	})
	ids := seedObligations(t, db, enrollment.ID, []int64{200, 200, 100})
	mustUpdateStatus(t, db, ids[1], models.ObligationStatusPaused)
	mustUpdateStatus(t, db, ids[2], models.ObligationStatusProcessing)

	// Only the open first installment is swept up. The paused and in-flight
	// ones hold slots 2 and 3, so the new tail must start at 4 even though
	// slot 1 just freed up.
	result, err := svc.Restructure(ctx, enrollment.ID, 2, testNow, "lower installments", "ops")
	if err != nil {
		t.Fatalf("Restructure: %v", err)
	}
	if result.CancelledCount != 1 || result.CreatedCount != 2 {
		t.Errorf("cancelled=%d created=%d, want 1/2", result.CancelledCount, result.CreatedCount)
	}
	if result.RemainingBalance != 200 {
		t.Errorf("remaining %d, want 200", result.RemainingBalance)
	}

	var inFlight models.PaymentObligation
	if err := db.First(&inFlight, ids[2]).Error; err != nil {
		t.Fatal(err)
	}
	if inFlight.Status != models.ObligationStatusProcessing {
		t.Errorf("in-flight obligation became %q", inFlight.Status)
	}

	seen := make(map[int]models.ObligationStatus)
	var liveSum int64
	for _, ob := range getObligations(t, db, enrollment.ID) {
		if ob.Status == models.ObligationStatusCancelled {
			continue
		}
		if prev, dup := seen[ob.PaymentNumber]; dup {
			t.Errorf("payment number %d held by both %q and %q", ob.PaymentNumber, prev, ob.Status)
		}
		seen[ob.PaymentNumber] = ob.Status
		liveSum += ob.Amount
	}
	if liveSum != 500 {
		t.Errorf("live obligations sum %d, want 500", liveSum)
	}
	for i, want := range []int{4, 5} {
		if status, ok := seen[want]; !ok || status != models.ObligationStatusPending {
			t.Errorf("slot %d: got %q, want pending installment %d", want, status, i+1)
		}
	}
}

func TestRestructurePreconditions(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRestructureService(db, nil)
	ctx := context.Background()

	plan := monthlyInstallmentPlan(t, db, 2)
	enrollment := createEnrollment(t, db, models.Enrollment{
		UserID: 1, Status: models.EnrollmentStatusActive, TotalAmount: 1000, Currency: "USD",
		PlanID: plan.ID,
	})
	ids := seedObligations(t, db, enrollment.ID, []int64{500, 500})

	if _, err := svc.Restructure(ctx, enrollment.ID, 0, testNow, "r", "a"); !apperrors.IsValidation(err) {
		t.Errorf("zero count: got %v, want validation error", err)
	}
	if _, err := svc.Restructure(ctx, enrollment.ID, 2, testNow, "", "a"); !apperrors.IsValidation(err) {
		t.Errorf("missing reason: got %v, want validation error", err)
	}
	if _, err := svc.Restructure(ctx, enrollment.ID, 2, testNow, "r", ""); !apperrors.IsValidation(err) {
		t.Errorf("missing actor: got %v, want validation error", err)
	}
	if _, err := svc.Restructure(ctx, 9999, 2, testNow, "r", "a"); !apperrors.IsNotFound(err) {
		t.Errorf("missing enrollment: got %v, want not found", err)
	}

	// Fully paid enrollments have nothing left to restructure.
	mustUpdateStatus(t, db, ids[0], models.ObligationStatusPaid)
	mustUpdateStatus(t, db, ids[1], models.ObligationStatusPaid)
	if _, err := svc.Restructure(ctx, enrollment.ID, 2, testNow, "r", "a"); !apperrors.IsValidation(err) {
		t.Errorf("fully paid: got %v, want validation error", err)
	}
}
