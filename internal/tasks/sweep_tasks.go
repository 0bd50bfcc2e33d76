package tasks

import (
	"context"
	"time"

	"enrollpay_echo/internal/models"
)

// SweepOverdueTaskDef runs the overdue sweeper: suspends enrollments past
// grace and emits one suspension event each.
type SweepOverdueTaskDef struct{}

func (t *SweepOverdueTaskDef) TaskID() string {
	return "sweep_overdue"
}

// CreateTask builds the recurring sweep. The interval is an RRULE string,
// typically daily.
func (t *SweepOverdueTaskDef) CreateTask(firstRun time.Time, recurringInterval string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, firstRun, &recurringInterval, models.ScheduledTaskTypeRecurring, 3)
}

func (t *SweepOverdueTaskDef) HandleExecution(ctx context.Context, env *TaskEnv, task models.ScheduledTask) (map[string]interface{}, error) {
	suspended, err := env.Sweeper.Sweep(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":          "success",
		"suspended_count": len(suspended),
		"suspended_ids":   suspended,
	}, nil
}

// SweepOverdueTask is the singleton instance of SweepOverdueTaskDef
var SweepOverdueTask = &SweepOverdueTaskDef{}
