package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ChargeSession tracks one gateway checkout session opened for an obligation.
// At most one session per obligation is active; stale sessions are deactivated
// when the gateway reports them dead or a new one is forced.
type ChargeSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EnrollmentID uint `json:"enrollment_id"`
	ObligationID uint `gorm:"index" json:"obligation_id"`

	PaymentGateway   PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	PaymentIntentID  string          `gorm:"type:varchar(100);index" json:"payment_intent_id"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`
	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata"`
}
