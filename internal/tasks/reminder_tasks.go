package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"enrollpay_echo/internal/events"
	"enrollpay_echo/internal/models"
)

// PaymentRemindersTaskDef emits payment.reminder_due for obligations coming
// up inside the reminder window and payment.overdue_notice for obligations
// past due but still within grace. Redis deduplicates to one notice per
// obligation per day; without Redis the consumer's at-least-once handling
// absorbs the repeats.
type PaymentRemindersTaskDef struct{}

func (t *PaymentRemindersTaskDef) TaskID() string {
	return "payment_reminders"
}

func (t *PaymentRemindersTaskDef) CreateTask(firstRun time.Time, recurringInterval string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, firstRun, &recurringInterval, models.ScheduledTaskTypeRecurring, 3)
}

func (t *PaymentRemindersTaskDef) HandleExecution(ctx context.Context, env *TaskEnv, task models.ScheduledTask) (map[string]interface{}, error) {
	now := time.Now()
	windowEnd := env.Policy.ReminderWindowEnd(now)

	var candidates []models.PaymentObligation
	err := env.DB.WithContext(ctx).Preload("Enrollment").
		Where("status IN ? AND original_due_date <= ?",
			[]models.ObligationStatus{models.ObligationStatusPending, models.ObligationStatusFailed},
			windowEnd).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	reminders := 0
	notices := 0
	for _, ob := range candidates {
		if ob.Enrollment.Status != models.EnrollmentStatusActive {
			continue
		}

		var eventType string
		switch {
		case !ob.OriginalDueDate.Before(now):
			eventType = events.TypePaymentReminderDue
		case !env.Policy.IsOverdue(ob.OriginalDueDate, now):
			eventType = events.TypePaymentOverdue
		default:
			// Past grace: the sweeper owns this obligation now.
			continue
		}

		if !t.claimDaily(ctx, env, ob.ID, eventType, now) {
			continue
		}

		env.Emitter.Emit(ctx, events.Event{
			Type:         eventType,
			EnrollmentID: ob.EnrollmentID,
			UserID:       ob.Enrollment.UserID,
			ObligationID: ob.ID,
			Amount:       ob.Amount,
			Currency:     ob.Currency,
			OccurredAt:   now,
		})
		if eventType == events.TypePaymentReminderDue {
			reminders++
		} else {
			notices++
		}
	}

	return map[string]interface{}{
		"status":    "success",
		"reminders": reminders,
		"notices":   notices,
	}, nil
}

// claimDaily wins at most once per obligation, event type and calendar day.
func (t *PaymentRemindersTaskDef) claimDaily(ctx context.Context, env *TaskEnv, obligationID uint, eventType string, now time.Time) bool {
	if env.Cache == nil {
		return true
	}
	key := fmt.Sprintf("reminder:%s:%d:%s", eventType, obligationID, now.Format("2006-01-02"))
	ok, err := env.Cache.SetNX(ctx, key, 1, 48*time.Hour)
	if err != nil {
		log.Printf("payment_reminders: dedup check failed for obligation %d: %v", obligationID, err)
		return true
	}
	return ok
}

// PaymentRemindersTask is the singleton instance of PaymentRemindersTaskDef
var PaymentRemindersTask = &PaymentRemindersTaskDef{}
