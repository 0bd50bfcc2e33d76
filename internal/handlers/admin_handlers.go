package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/services"
)

// AdminHandler serves the operator surface: restructuring a schedule and
// pausing/resuming individual obligations. Authentication of the caller is
// the gateway's responsibility.
type AdminHandler struct {
	ledger      *services.LedgerService
	restructure *services.RestructureService
}

func NewAdminHandler(ledger *services.LedgerService, restructure *services.RestructureService) *AdminHandler {
	return &AdminHandler{ledger: ledger, restructure: restructure}
}

// Restructure replaces the unpaid tail of an enrollment's schedule.
func (h *AdminHandler) Restructure(c echo.Context) error {
	enrollmentID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req RestructureRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}

	result, err := h.restructure.Restructure(c.Request().Context(),
		enrollmentID, req.NewInstallmentCount, req.NewStartDate, req.Reason, req.Actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// PauseObligation parks a pending obligation.
func (h *AdminHandler) PauseObligation(c echo.Context) error {
	return h.adjust(c, h.ledger.PauseObligation)
}

// ResumeObligation returns a paused obligation to pending.
func (h *AdminHandler) ResumeObligation(c echo.Context) error {
	return h.adjust(c, h.ledger.ResumeObligation)
}

func (h *AdminHandler) adjust(c echo.Context, op func(ctx context.Context, obligationID uint, actor, reason string) error) error {
	obligationID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req AdjustObligationRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}
	if err := op(c.Request().Context(), obligationID, req.Actor, req.Reason); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
