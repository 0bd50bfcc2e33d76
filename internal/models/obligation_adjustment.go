package models

import (
	"time"

	"gorm.io/gorm"
)

// Adjustment actions recorded against obligations.
const (
	AdjustmentActionPause             = "pause"
	AdjustmentActionResume            = "resume"
	AdjustmentActionRestructureCancel = "restructure_cancel"
	AdjustmentActionRestructureCreate = "restructure_create"
	AdjustmentActionReschedule        = "reschedule"
)

// ObligationAdjustment is one append-only audit entry for a manual or
// restructure-driven change to an obligation. Rows are never updated.
type ObligationAdjustment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ObligationID uint `gorm:"index" json:"obligation_id"`
	EnrollmentID uint `gorm:"index" json:"enrollment_id"`

	Actor  string `gorm:"type:varchar(255)" json:"actor"`
	Action string `gorm:"type:varchar(50)" json:"action"`
	Reason string `gorm:"type:varchar(255)" json:"reason"`

	Before map[string]interface{} `gorm:"serializer:json" json:"before"`
	After  map[string]interface{} `gorm:"serializer:json" json:"after"`
}
