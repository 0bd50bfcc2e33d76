package tasks

import (
	"context"
	"log"
	"time"

	"enrollpay_echo/internal/models"
)

// ExtendSubscriptionsTaskDef materializes subscription obligations lazily:
// each active subscription enrollment keeps exactly one period ahead of the
// clock, so open-ended schedules are never bulk-generated.
type ExtendSubscriptionsTaskDef struct{}

func (t *ExtendSubscriptionsTaskDef) TaskID() string {
	return "extend_subscriptions"
}

func (t *ExtendSubscriptionsTaskDef) CreateTask(firstRun time.Time, recurringInterval string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, firstRun, &recurringInterval, models.ScheduledTaskTypeRecurring, 3)
}

func (t *ExtendSubscriptionsTaskDef) HandleExecution(ctx context.Context, env *TaskEnv, task models.ScheduledTask) (map[string]interface{}, error) {
	now := time.Now()

	var enrollments []models.Enrollment
	err := env.DB.WithContext(ctx).Preload("Plan").
		Joins("JOIN payment_plans ON payment_plans.id = enrollments.plan_id").
		Where("enrollments.status = ? AND payment_plans.plan_type = ?",
			models.EnrollmentStatusActive, models.PlanTypeSubscription).
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	created := 0
	for _, enrollment := range enrollments {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ok, err := t.extendOne(ctx, env, enrollment, now)
		if err != nil {
			log.Printf("extend_subscriptions: enrollment %d: %v", enrollment.ID, err)
			continue
		}
		if ok {
			created++
		}
	}

	return map[string]interface{}{
		"status":   "success",
		"scanned":  len(enrollments),
		"extended": created,
	}, nil
}

func (t *ExtendSubscriptionsTaskDef) extendOne(ctx context.Context, env *TaskEnv, enrollment models.Enrollment, now time.Time) (bool, error) {
	var last models.PaymentObligation
	err := env.DB.WithContext(ctx).
		Where("enrollment_id = ? AND status != ?", enrollment.ID, models.ObligationStatusCancelled).
		Order("payment_number desc").First(&last).Error
	if err != nil {
		return false, err
	}

	// Still one period ahead, nothing to do.
	if last.OriginalDueDate.After(now) {
		return false, nil
	}

	next := enrollment.Plan.NextOccurrence(last.OriginalDueDate)
	if !next.After(last.OriginalDueDate) {
		return false, nil
	}

	ob := models.PaymentObligation{
		EnrollmentID:    enrollment.ID,
		PaymentNumber:   last.PaymentNumber + 1,
		PaymentType:     models.PaymentTypeSubscription,
		Amount:          enrollment.TotalAmount,
		Currency:        enrollment.Currency,
		OriginalDueDate: next,
		ScheduledDate:   next,
		Status:          models.ObligationStatusPending,
	}
	if err := env.DB.WithContext(ctx).Create(&ob).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ExtendSubscriptionsTask is the singleton instance of ExtendSubscriptionsTaskDef
var ExtendSubscriptionsTask = &ExtendSubscriptionsTaskDef{}
