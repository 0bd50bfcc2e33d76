// Package events carries the engine's outbound domain events to the
// notification collaborator. Delivery is fire-and-forget, at-least-once;
// consumers are expected to deduplicate.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types consumed by the notification collaborator.
const (
	TypeEnrollmentSuspended = "enrollment.suspended"
	TypePaymentReminderDue  = "payment.reminder_due"
	TypePaymentOverdue      = "payment.overdue_notice"
)

// Event is one outbound domain event.
type Event struct {
	Type         string    `json:"type"`
	EnrollmentID uint      `json:"enrollment_id"`
	UserID       uint      `json:"user_id"`
	ObligationID uint      `json:"obligation_id,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Emitter publishes domain events. Implementations must not block the caller
// on delivery failures.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// RedisEmitter publishes events on a Redis channel named after the event type.
type RedisEmitter struct {
	client *redis.Client
}

func NewRedisEmitter(client *redis.Client) *RedisEmitter {
	return &RedisEmitter{client: client}
}

// Emit publishes the event. Failures are logged and swallowed; the engine
// never fails a mutation because a notification could not be delivered.
func (e *RedisEmitter) Emit(ctx context.Context, ev Event) {
	if e == nil || e.client == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: failed to marshal %s: %v", ev.Type, err)
		return
	}
	if err := e.client.Publish(ctx, ev.Type, payload).Err(); err != nil {
		log.Printf("events: failed to publish %s for enrollment %d: %v", ev.Type, ev.EnrollmentID, err)
	}
}

// NopEmitter discards events; used when Redis is not configured.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}
