package handlers

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"enrollpay_echo/internal/apperrors"
)

// CreateScheduleRequest is the inbound payload from the enrollment-creation
// collaborator. Amounts are minor currency units.
type CreateScheduleRequest struct {
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	PlanID      uint      `json:"plan_id"`
	StartDate   time.Time `json:"start_date"`
}

// ChargeOutcomeRequest is the generic charge-service callback payload.
type ChargeOutcomeRequest struct {
	ObligationID    uint      `json:"obligation_id"`
	Success         bool      `json:"success"`
	PaymentIntentID string    `json:"payment_intent_id"`
	EventID         string    `json:"event_id"`
	FailureCode     string    `json:"failure_code"`
	Channel         string    `json:"channel"`
	Timestamp       time.Time `json:"timestamp"`
}

// RefundRequest is the generic refund callback payload.
type RefundRequest struct {
	PaymentID uint      `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RestructureRequest is the operator payload for replacing the unpaid tail.
type RestructureRequest struct {
	NewInstallmentCount int       `json:"new_installment_count"`
	NewStartDate        time.Time `json:"new_start_date"`
	Reason              string    `json:"reason"`
	Actor               string    `json:"actor"`
}

// AdjustObligationRequest covers pause and resume.
type AdjustObligationRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// InitiateChargeRequest opens a checkout session for an obligation.
type InitiateChargeRequest struct {
	ForceNew    bool   `json:"force_new"`
	CallbackURL string `json:"callback_url"`
}

func paramID(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperrors.Validationf("invalid %s %q", name, raw)
	}
	return uint(id), nil
}
