package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ChargeEventType classifies inbound gateway events.
type ChargeEventType string

const (
	ChargeEventSuccess ChargeEventType = "charge.success"
	ChargeEventFailure ChargeEventType = "charge.failure"
	ChargeEventRefund  ChargeEventType = "charge.refund"
)

// ChargeEvent is the idempotency record for inbound charge-service events.
// Webhooks are delivered at least once and may arrive out of order; an insert
// here is the first step of every mutation, so a replayed event short-circuits
// before touching ledger state.
type ChargeEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// EventID is the upstream event ID and the primary idempotency key. The
	// (intent, type) pair is additionally checked for charge outcomes, where a
	// given intent settles exactly once; refunds may repeat per intent.
	EventID         string          `gorm:"type:varchar(100);uniqueIndex" json:"event_id"`
	EventType       ChargeEventType `gorm:"type:varchar(50);index:idx_charge_events_intent_type,priority:2" json:"event_type"`
	PaymentIntentID string          `gorm:"type:varchar(100);index:idx_charge_events_intent_type,priority:1" json:"payment_intent_id"`

	EnrollmentID uint            `gorm:"index" json:"enrollment_id"`
	ObligationID uint            `gorm:"index" json:"obligation_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata"`
}
