package models

import (
	"time"

	"gorm.io/gorm"
)

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusDraft     EnrollmentStatus = "draft"
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusSuspended EnrollmentStatus = "suspended"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

const SuspendedReasonPaymentOverdue = "payment_overdue"

// enrollmentTransitions lists the allowed status transitions.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusDraft:     {EnrollmentStatusPending, EnrollmentStatusActive, EnrollmentStatusCancelled, EnrollmentStatusCompleted},
	EnrollmentStatusPending:   {EnrollmentStatusActive, EnrollmentStatusCancelled, EnrollmentStatusCompleted},
	EnrollmentStatusActive:    {EnrollmentStatusSuspended, EnrollmentStatusCompleted, EnrollmentStatusCancelled},
	EnrollmentStatusSuspended: {EnrollmentStatusActive, EnrollmentStatusCompleted, EnrollmentStatusCancelled},
	EnrollmentStatusCompleted: {},
	EnrollmentStatusCancelled: {},
}

// CanTransition reports whether moving from one enrollment status to another
// is allowed.
func CanTransition(from, to EnrollmentStatus) bool {
	for _, t := range enrollmentTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Enrollment is the aggregate root owning a payment schedule. Version backs
// optimistic concurrency: every obligation-mutating write bumps it and is
// conditioned on the value read.
type Enrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID uint `gorm:"index" json:"user_id"`
	PlanID uint `gorm:"index" json:"plan_id"`

	TotalAmount     int64            `json:"total_amount"` // minor currency units
	Currency        string           `gorm:"type:varchar(10)" json:"currency"`
	Status          EnrollmentStatus `gorm:"type:varchar(20);default:'draft';index" json:"status"`
	SuspendedReason string           `gorm:"type:varchar(100)" json:"suspended_reason"`
	Version         int              `gorm:"default:0" json:"version"`

	// Relationships
	Plan        PaymentPlan         `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Obligations []PaymentObligation `gorm:"foreignKey:EnrollmentID" json:"obligations,omitempty"`
}
