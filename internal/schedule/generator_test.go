package schedule

import (
	"testing"
	"time"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
)

var testStart = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func sumAmounts(obs []models.PaymentObligation) int64 {
	var total int64
	for _, ob := range obs {
		total += ob.Amount
	}
	return total
}

func TestGenerateInstallmentsConservation(t *testing.T) {
	// Awkward totals that do not divide evenly across the count.
	totals := []int64{100000, 99999, 100001, 33333, 1}
	counts := []int{1, 2, 3, 7, 13}

	for _, total := range totals {
		for _, count := range counts {
			plan := models.PaymentPlan{
				PlanType:             models.PlanTypeInstallments,
				InstallmentCount:     count,
				InstallmentFrequency: models.FrequencyMonthly,
			}
			obs, err := Generate(total, "USD", plan, testStart)
			if err != nil {
				t.Fatalf("Generate(%d, count=%d): %v", total, count, err)
			}
			if len(obs) != count {
				t.Fatalf("Generate(%d, count=%d): got %d obligations", total, count, len(obs))
			}
			if got := sumAmounts(obs); got != total {
				t.Errorf("Generate(%d, count=%d): amounts sum to %d", total, count, got)
			}

			// The remainder sits on the last installment; all earlier parts
			// are equal.
			per := total / int64(count)
			for i, ob := range obs {
				if i < count-1 && ob.Amount != per {
					t.Errorf("Generate(%d, count=%d): part %d = %d, want %d", total, count, i, ob.Amount, per)
				}
				if ob.PaymentNumber != i+1 {
					t.Errorf("payment number %d, want %d", ob.PaymentNumber, i+1)
				}
				if ob.Status != models.ObligationStatusPending {
					t.Errorf("status %q, want pending", ob.Status)
				}
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	plan := models.PaymentPlan{
		PlanType:             models.PlanTypeInstallments,
		InstallmentCount:     4,
		InstallmentFrequency: models.FrequencyMonthly,
	}
	first, err := Generate(120000, "USD", plan, testStart)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Generate(120000, "USD", plan, testStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Amount != second[i].Amount || !first[i].OriginalDueDate.Equal(second[i].OriginalDueDate) {
			t.Errorf("obligation %d differs between runs", i)
		}
	}
}

func TestGenerateMonthlyDueDates(t *testing.T) {
	plan := models.PaymentPlan{
		PlanType:             models.PlanTypeInstallments,
		InstallmentCount:     4,
		InstallmentFrequency: models.FrequencyMonthly,
	}
	obs, err := Generate(120000, "USD", plan, testStart)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		testStart,
		testStart.AddDate(0, 1, 0),
		testStart.AddDate(0, 2, 0),
		testStart.AddDate(0, 3, 0),
	}
	for i, ob := range obs {
		if !ob.OriginalDueDate.Equal(want[i]) {
			t.Errorf("installment %d due %v, want %v", i+1, ob.OriginalDueDate, want[i])
		}
		if !ob.ScheduledDate.Equal(ob.OriginalDueDate) {
			t.Errorf("installment %d scheduled date drifted from original", i+1)
		}
	}
}

func TestGenerateDeposit(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		plan        models.PaymentPlan
		wantDeposit int64
		wantBalance int64
	}{
		{
			name:  "percent rounds half up",
			total: 99999,
			plan: models.PaymentPlan{
				PlanType:              models.PlanTypeDeposit,
				DepositPercent:        2500, // 25%
				DepositBalanceDueDays: 30,
			},
			wantDeposit: 25000, // 24999.75 rounds up
			wantBalance: 74999,
		},
		{
			name:  "fixed amount",
			total: 100000,
			plan: models.PaymentPlan{
				PlanType:              models.PlanTypeDeposit,
				DepositFixedAmount:    30000,
				DepositBalanceDueDays: 14,
			},
			wantDeposit: 30000,
			wantBalance: 70000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := Generate(tt.total, "USD", tt.plan, testStart)
			if err != nil {
				t.Fatal(err)
			}
			if len(obs) != 2 {
				t.Fatalf("got %d obligations, want 2", len(obs))
			}
			if obs[0].Amount != tt.wantDeposit {
				t.Errorf("deposit = %d, want %d", obs[0].Amount, tt.wantDeposit)
			}
			if obs[0].PaymentType != models.PaymentTypeDeposit {
				t.Errorf("first obligation type %q, want deposit", obs[0].PaymentType)
			}
			if obs[1].Amount != tt.wantBalance {
				t.Errorf("balance = %d, want %d", obs[1].Amount, tt.wantBalance)
			}
			wantDue := testStart.AddDate(0, 0, tt.plan.DepositBalanceDueDays)
			if !obs[1].OriginalDueDate.Equal(wantDue) {
				t.Errorf("balance due %v, want %v", obs[1].OriginalDueDate, wantDue)
			}
			if got := sumAmounts(obs); got != tt.total {
				t.Errorf("amounts sum to %d, want %d", got, tt.total)
			}
		})
	}
}

func TestGenerateDepositFullPercent(t *testing.T) {
	// 100% deposit collapses to a single obligation; no zero-amount balance.
	plan := models.PaymentPlan{
		PlanType:       models.PlanTypeDeposit,
		DepositPercent: 10000,
	}
	obs, err := Generate(50000, "USD", plan, testStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d obligations, want 1", len(obs))
	}
	if obs[0].Amount != 50000 {
		t.Errorf("deposit = %d, want 50000", obs[0].Amount)
	}
}

func TestGenerateOneTime(t *testing.T) {
	obs, err := Generate(75000, "USD", models.PaymentPlan{PlanType: models.PlanTypeOneTime}, testStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d obligations, want 1", len(obs))
	}
	if obs[0].Amount != 75000 || obs[0].PaymentType != models.PaymentTypeFull {
		t.Errorf("got amount=%d type=%q", obs[0].Amount, obs[0].PaymentType)
	}
	if !obs[0].OriginalDueDate.Equal(testStart) {
		t.Errorf("due %v, want start date", obs[0].OriginalDueDate)
	}
}

func TestGenerateSubscriptionFirstPeriodOnly(t *testing.T) {
	plan := models.PaymentPlan{
		PlanType:              models.PlanTypeSubscription,
		SubscriptionFrequency: models.FrequencyMonthly,
		TrialDays:             14,
	}
	obs, err := Generate(9900, "USD", plan, testStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 {
		t.Fatalf("got %d obligations, want 1", len(obs))
	}
	wantDue := testStart.AddDate(0, 0, 14)
	if !obs[0].OriginalDueDate.Equal(wantDue) {
		t.Errorf("first period due %v, want %v (trial offset)", obs[0].OriginalDueDate, wantDue)
	}
	if obs[0].PaymentType != models.PaymentTypeSubscription {
		t.Errorf("type %q, want subscription", obs[0].PaymentType)
	}
}

func TestGenerateZeroTotal(t *testing.T) {
	obs, err := Generate(0, "USD", models.PaymentPlan{PlanType: models.PlanTypeOneTime}, testStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 0 {
		t.Fatalf("zero total produced %d obligations", len(obs))
	}
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		plan  models.PaymentPlan
	}{
		{"negative total", -1, models.PaymentPlan{PlanType: models.PlanTypeOneTime}},
		{"zero installment count", 1000, models.PaymentPlan{PlanType: models.PlanTypeInstallments, InstallmentFrequency: models.FrequencyMonthly}},
		{"deposit without percent or amount", 1000, models.PaymentPlan{PlanType: models.PlanTypeDeposit}},
		{"unknown plan type", 1000, models.PaymentPlan{PlanType: "lottery"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.total, "USD", tt.plan, testStart)
			if !apperrors.IsValidation(err) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestSplitEvenly(t *testing.T) {
	tests := []struct {
		amount int64
		n      int
		want   []int64
	}{
		{100, 3, []int64{33, 33, 34}},
		{100, 4, []int64{25, 25, 25, 25}},
		{1, 3, []int64{0, 0, 1}},
		{99999, 2, []int64{49999, 50000}},
	}
	for _, tt := range tests {
		got := SplitEvenly(tt.amount, tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("SplitEvenly(%d, %d) = %v", tt.amount, tt.n, got)
		}
		var sum int64
		for i := range got {
			sum += got[i]
			if got[i] != tt.want[i] {
				t.Errorf("SplitEvenly(%d, %d)[%d] = %d, want %d", tt.amount, tt.n, i, got[i], tt.want[i])
			}
		}
		if sum != tt.amount {
			t.Errorf("SplitEvenly(%d, %d) sums to %d", tt.amount, tt.n, sum)
		}
	}
}
