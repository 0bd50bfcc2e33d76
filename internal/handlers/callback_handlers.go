package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/services"
)

// CallbackHandler receives charge-service outcomes: the generic JSON
// callbacks and the Midtrans notification webhook. Everything funnels into
// the ledger, which deduplicates by event ID.
type CallbackHandler struct {
	db       *gorm.DB
	ledger   *services.LedgerService
	midtrans *services.MidtransService
}

func NewCallbackHandler(db *gorm.DB, ledger *services.LedgerService, midtrans *services.MidtransService) *CallbackHandler {
	return &CallbackHandler{db: db, ledger: ledger, midtrans: midtrans}
}

// ChargeOutcome applies a generic success/failure callback.
func (h *CallbackHandler) ChargeOutcome(c echo.Context) error {
	var req ChargeOutcomeRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	err := h.ledger.RecordChargeOutcome(c.Request().Context(), services.ChargeOutcome{
		ObligationID:    req.ObligationID,
		Success:         req.Success,
		PaymentIntentID: req.PaymentIntentID,
		EventID:         req.EventID,
		FailureCode:     req.FailureCode,
		Channel:         req.Channel,
		Gateway:         models.PaymentGatewayManual,
		Timestamp:       req.Timestamp,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Refund applies a generic refund callback.
func (h *CallbackHandler) Refund(c echo.Context) error {
	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	err := h.ledger.RecordRefund(c.Request().Context(), services.RefundEvent{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		EventID:   req.EventID,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// MidtransCallback handles Midtrans transaction notifications. The intent ID
// encodes the obligation (obligation-{id}-{nonce}); the notification's
// transaction_id plus its status form the idempotency key for charge
// outcomes, so redelivered notifications are no-ops. Refunds key on their
// own discriminator because one transaction can be refunded in parts.
func (h *CallbackHandler) MidtransCallback(c echo.Context) error {
	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}

	orderID, _ := payload["order_id"].(string)
	transactionID, _ := payload["transaction_id"].(string)
	transactionStatus, _ := payload["transaction_status"].(string)
	fraudStatus, _ := payload["fraud_status"].(string)
	statusCode, _ := payload["status_code"].(string)
	grossAmount, _ := payload["gross_amount"].(string)
	signatureKey, _ := payload["signature_key"].(string)
	paymentType, _ := payload["payment_type"].(string)

	if h.midtrans != nil && signatureKey != "" {
		if !h.midtrans.VerifySignature(orderID, statusCode, grossAmount, signatureKey) {
			return apperrors.Validationf("invalid notification signature")
		}
	}

	obligationID, err := obligationIDFromIntent(orderID)
	if err != nil {
		return err
	}

	eventID := fmt.Sprintf("midtrans:%s:%s", transactionID, transactionStatus)
	timestamp := time.Now()
	if settledAt, ok := payload["settlement_time"].(string); ok {
		if t, perr := time.Parse("2006-01-02 15:04:05", settledAt); perr == nil {
			timestamp = t
		}
	}

	ctx := c.Request().Context()
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			// Held at the gateway; neither success nor failure yet.
			return c.JSON(http.StatusOK, map[string]string{"status": "challenge"})
		}
		if fraudStatus != "" && fraudStatus != "accept" {
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}
		err = h.recordOutcome(c, obligationID, true, orderID, eventID, "", paymentType, timestamp)
	case "settlement":
		err = h.recordOutcome(c, obligationID, true, orderID, eventID, "", paymentType, timestamp)
	case "deny", "expire", "cancel", "failure":
		err = h.recordOutcome(c, obligationID, false, orderID, eventID, transactionStatus, paymentType, timestamp)
	case "refund", "partial_refund":
		err = h.recordMidtransRefund(ctx, orderID, midtransRefundEventID(transactionID, payload), payload, timestamp)
	default:
		// pending and friends carry no ledger-relevant state change
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CallbackHandler) recordOutcome(c echo.Context, obligationID uint, success bool, intentID, eventID, failureCode, channel string, ts time.Time) error {
	return h.ledger.RecordChargeOutcome(c.Request().Context(), services.ChargeOutcome{
		ObligationID:    obligationID,
		Success:         success,
		PaymentIntentID: intentID,
		EventID:         eventID,
		FailureCode:     failureCode,
		Channel:         channel,
		Gateway:         models.PaymentGatewayMidtrans,
		Timestamp:       ts,
	})
}

func (h *CallbackHandler) recordMidtransRefund(ctx context.Context, intentID, eventID string, payload map[string]interface{}, ts time.Time) error {
	var payment models.Payment
	err := h.db.WithContext(ctx).Where("payment_intent_id = ? AND status IN ?", intentID,
		[]models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusRefunded}).
		Order("created_at desc").First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFoundf("payment for intent %s", intentID)
		}
		return err
	}

	amount := refundAmountFromPayload(payload, payment.Amount-payment.RefundedAmount)
	reason, _ := payload["refund_reason"].(string)
	return h.ledger.RecordRefund(ctx, services.RefundEvent{
		PaymentID: payment.ID,
		Amount:    amount,
		Reason:    reason,
		EventID:   eventID,
		Timestamp: ts,
	})
}

// midtransRefundEventID builds the idempotency key for a single refund.
// transaction_id plus transaction_status repeats across partial refunds of
// the same transaction, so a refund-unique discriminator from the payload is
// folded in instead of the status.
func midtransRefundEventID(transactionID string, payload map[string]interface{}) string {
	if id, ok := payload["refund_chargeback_id"].(float64); ok && id > 0 {
		return fmt.Sprintf("midtrans:%s:refund:%.0f", transactionID, id)
	}
	if key, ok := payload["refund_key"].(string); ok && key != "" {
		return fmt.Sprintf("midtrans:%s:refund:%s", transactionID, key)
	}
	amount, _ := payload["refund_amount"].(string)
	return fmt.Sprintf("midtrans:%s:refund:%s", transactionID, amount)
}

// refundAmountFromPayload prefers the explicit refund_amount field and falls
// back to the remaining refundable amount for full refunds.
func refundAmountFromPayload(payload map[string]interface{}, remaining int64) int64 {
	if raw, ok := payload["refund_amount"].(string); ok {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
			return int64(f)
		}
	}
	return remaining
}

func obligationIDFromIntent(intentID string) (uint, error) {
	parts := strings.Split(intentID, "-")
	if len(parts) < 3 || parts[0] != "obligation" {
		return 0, apperrors.Validationf("invalid order ID format %q", intentID)
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, apperrors.Validationf("invalid obligation ID in order ID %q", intentID)
	}
	return uint(id), nil
}
