package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/services"
)

// ChargeHandler opens checkout sessions through the configured charge service.
type ChargeHandler struct {
	charge services.ChargeService
}

func NewChargeHandler(charge services.ChargeService) *ChargeHandler {
	return &ChargeHandler{charge: charge}
}

// InitiateCharge opens (or resumes) a checkout session for an obligation.
func (h *ChargeHandler) InitiateCharge(c echo.Context) error {
	if h.charge == nil {
		return apperrors.Validationf("no charge gateway configured")
	}
	obligationID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req InitiateChargeRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}
	result, err := h.charge.InitiateCharge(c.Request().Context(), obligationID, req.ForceNew, req.CallbackURL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
