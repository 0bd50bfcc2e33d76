package models

import (
	"time"

	"gorm.io/gorm"
)

type PaymentGateway string

const (
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
	PaymentGatewayManual   PaymentGateway = "manual"
)

// PaymentStatus is the outcome state of one charge attempt.
type PaymentStatus string

const (
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment records the outcome of one charge attempt against an obligation.
// A retried obligation accumulates multiple rows; only the last may be
// completed. Partial refunds live here, not on the obligation.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EnrollmentID uint `gorm:"index" json:"enrollment_id"`
	ObligationID uint `gorm:"index" json:"obligation_id"`

	PaymentIntentID string        `gorm:"type:varchar(100);index" json:"payment_intent_id"`
	Status          PaymentStatus `gorm:"type:varchar(20)" json:"status"`

	Amount   int64  `json:"amount"` // minor currency units
	Currency string `gorm:"type:varchar(10)" json:"currency"`

	PaymentGateway PaymentGateway `gorm:"type:varchar(50)" json:"payment_gateway"`
	ChannelPayment string         `gorm:"type:varchar(100)" json:"channel_payment"`
	FailureCode    string         `gorm:"type:varchar(100)" json:"failure_code"`
	PaymentDate    *time.Time     `json:"payment_date"`

	RefundedAmount int64      `json:"refunded_amount"`
	RefundReason   string     `gorm:"type:varchar(255)" json:"refund_reason"`
	RefundedAt     *time.Time `json:"refunded_at"`

	// Relationships
	Enrollment Enrollment        `gorm:"foreignKey:EnrollmentID" json:"enrollment,omitempty"`
	Obligation PaymentObligation `gorm:"foreignKey:ObligationID" json:"obligation,omitempty"`
}
