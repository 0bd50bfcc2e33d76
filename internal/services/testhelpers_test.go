package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"enrollpay_echo/internal/events"
	"enrollpay_echo/internal/models"
)

var testDBCounter int64

// setupTestDB opens a private in-memory sqlite database and migrates the full
// schema. cache=shared keeps the database alive across gorm's pooled
// connections for the lifetime of the test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(_ context.Context, ev events.Event) {
	c.events = append(c.events, ev)
}

func createPlan(t *testing.T, db *gorm.DB, plan models.PaymentPlan) models.PaymentPlan {
	t.Helper()
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func createEnrollment(t *testing.T, db *gorm.DB, e models.Enrollment) models.Enrollment {
	t.Helper()
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("create enrollment: %v", err)
	}
	return e
}

func getEnrollment(t *testing.T, db *gorm.DB, id uint) models.Enrollment {
	t.Helper()
	var e models.Enrollment
	if err := db.First(&e, id).Error; err != nil {
		t.Fatalf("load enrollment %d: %v", id, err)
	}
	return e
}

func getObligations(t *testing.T, db *gorm.DB, enrollmentID uint) []models.PaymentObligation {
	t.Helper()
	var obs []models.PaymentObligation
	if err := db.Where("enrollment_id = ?", enrollmentID).
		Order("payment_number asc, id asc").Find(&obs).Error; err != nil {
		t.Fatalf("load obligations: %v", err)
	}
	return obs
}

// seedObligations inserts pending monthly obligations directly, bypassing the
// schedule generator, and returns their IDs in payment-number order.
func seedObligations(t *testing.T, db *gorm.DB, enrollmentID uint, amounts []int64) []uint {
	t.Helper()
	ids := make([]uint, 0, len(amounts))
	due := testNow
	for i, amount := range amounts {
		ob := models.PaymentObligation{
			EnrollmentID:    enrollmentID,
			PaymentNumber:   i + 1,
			PaymentType:     models.PaymentTypeInstallment,
			Amount:          amount,
			Currency:        "USD",
			OriginalDueDate: due,
			ScheduledDate:   due,
			Status:          models.ObligationStatusPending,
		}
		if err := db.Create(&ob).Error; err != nil {
			t.Fatalf("seed obligation %d: %v", i, err)
		}
		ids = append(ids, ob.ID)
		due = due.AddDate(0, 1, 0)
	}
	return ids
}

func mustUpdateStatus(t *testing.T, db *gorm.DB, obligationID uint, status models.ObligationStatus) {
	t.Helper()
	if err := db.Model(&models.PaymentObligation{}).Where("id = ?", obligationID).
		Update("status", status).Error; err != nil {
		t.Fatalf("update obligation %d: %v", obligationID, err)
	}
}

func monthlyInstallmentPlan(t *testing.T, db *gorm.DB, count int) models.PaymentPlan {
	t.Helper()
	return createPlan(t, db, models.PaymentPlan{
		Name:                 fmt.Sprintf("%d monthly installments", count),
		PlanType:             models.PlanTypeInstallments,
		InstallmentCount:     count,
		InstallmentFrequency: models.FrequencyMonthly,
	})
}

// testNow anchors schedules relative to the wall clock so access checks made
// through time.Now agree with the fixtures. Truncated so timestamps survive
// the sqlite round trip exactly.
var testNow = time.Now().UTC().Truncate(time.Second)
