package tasks

import (
	"context"
	"log"
	"time"

	"enrollpay_echo/internal/models"
)

// RequeueRetriesTaskDef moves failed obligations whose retry time has come
// back to pending and opens a fresh charge session for each. Obligations
// whose retries are exhausted have no next retry date and stay failed until
// an operator steps in.
type RequeueRetriesTaskDef struct{}

func (t *RequeueRetriesTaskDef) TaskID() string {
	return "requeue_retries"
}

func (t *RequeueRetriesTaskDef) CreateTask(firstRun time.Time, recurringInterval string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, firstRun, &recurringInterval, models.ScheduledTaskTypeRecurring, 3)
}

func (t *RequeueRetriesTaskDef) HandleExecution(ctx context.Context, env *TaskEnv, task models.ScheduledTask) (map[string]interface{}, error) {
	now := time.Now()

	var due []models.PaymentObligation
	err := env.DB.WithContext(ctx).
		Where("status = ? AND next_retry_date IS NOT NULL AND next_retry_date <= ?",
			models.ObligationStatusFailed, now).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	requeued := 0
	initiated := 0
	for _, ob := range due {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err := env.DB.WithContext(ctx).Model(&models.PaymentObligation{}).
			Where("id = ? AND status = ?", ob.ID, models.ObligationStatusFailed).
			Updates(map[string]interface{}{
				"status":          models.ObligationStatusPending,
				"next_retry_date": nil,
			}).Error
		if err != nil {
			log.Printf("requeue_retries: failed to requeue obligation %d: %v", ob.ID, err)
			continue
		}
		requeued++

		if env.Charge != nil {
			if _, err := env.Charge.InitiateCharge(ctx, ob.ID, false, ""); err != nil {
				// The obligation is back in the pending pool regardless; the
				// next run or a manual checkout picks it up.
				log.Printf("requeue_retries: charge initiation failed for obligation %d: %v", ob.ID, err)
				continue
			}
			initiated++
		}
	}

	return map[string]interface{}{
		"status":    "success",
		"due":       len(due),
		"requeued":  requeued,
		"initiated": initiated,
	}, nil
}

// RequeueRetriesTask is the singleton instance of RequeueRetriesTaskDef
var RequeueRetriesTask = &RequeueRetriesTaskDef{}
