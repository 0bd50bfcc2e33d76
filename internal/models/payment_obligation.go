package models

import (
	"time"

	"gorm.io/gorm"
)

// ObligationStatus is the state of a single scheduled payment.
type ObligationStatus string

const (
	ObligationStatusPending    ObligationStatus = "pending"
	ObligationStatusProcessing ObligationStatus = "processing"
	ObligationStatusPaid       ObligationStatus = "paid"
	ObligationStatusFailed     ObligationStatus = "failed"
	ObligationStatusPaused     ObligationStatus = "paused"
	ObligationStatusAdjusted   ObligationStatus = "adjusted"
	ObligationStatusCancelled  ObligationStatus = "cancelled"
	ObligationStatusRefunded   ObligationStatus = "refunded"
)

// PaymentType identifies what an obligation represents within its plan.
type PaymentType string

const (
	PaymentTypeDeposit      PaymentType = "deposit"
	PaymentTypeInstallment  PaymentType = "installment"
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeFull         PaymentType = "full"
)

// PaymentObligation is one row of a schedule: an amount due on a date for one
// enrollment. Obligations are soft-cancelled, never hard-deleted, once payment
// history references them.
type PaymentObligation struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EnrollmentID  uint        `gorm:"index" json:"enrollment_id"`
	PaymentNumber int         `json:"payment_number"` // 1-based, dense per enrollment
	PaymentType   PaymentType `gorm:"type:varchar(20)" json:"payment_type"`

	Amount   int64  `json:"amount"` // minor currency units, always positive
	Currency string `gorm:"type:varchar(10)" json:"currency"`

	OriginalDueDate time.Time `gorm:"index" json:"original_due_date"`
	ScheduledDate   time.Time `json:"scheduled_date"` // may be admin-adjusted

	Status        ObligationStatus `gorm:"type:varchar(20);index" json:"status"`
	PaidDate      *time.Time       `json:"paid_date"`
	RetryCount    int              `json:"retry_count"`
	NextRetryDate *time.Time       `json:"next_retry_date"`

	// Refund state. A full refund moves the obligation to refunded; a partial
	// refund is carried on the owning Payment record only, so reporting built
	// on obligation amounts stays conserved.
	RefundedAmount int64      `json:"refunded_amount"`
	RefundedAt     *time.Time `json:"refunded_at"`

	// Relationships
	Enrollment  Enrollment             `gorm:"foreignKey:EnrollmentID" json:"enrollment,omitempty"`
	Payments    []Payment              `gorm:"foreignKey:ObligationID" json:"payments,omitempty"`
	Adjustments []ObligationAdjustment `gorm:"foreignKey:ObligationID" json:"adjustments,omitempty"`
}

// Open reports whether the obligation still represents money owed.
func (o PaymentObligation) Open() bool {
	switch o.Status {
	case ObligationStatusPending, ObligationStatusProcessing, ObligationStatusFailed,
		ObligationStatusPaused, ObligationStatusAdjusted:
		return true
	}
	return false
}

// CountsTowardTotal reports whether the obligation participates in the
// money-conservation sum. Only cancelled obligations drop out.
func (o PaymentObligation) CountsTowardTotal() bool {
	return o.Status != ObligationStatusCancelled
}
