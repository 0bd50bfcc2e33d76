package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"enrollpay_echo/internal/services"
)

// AccessHandler answers the access-control middleware's per-request checks.
type AccessHandler struct {
	access *services.AccessService
}

func NewAccessHandler(access *services.AccessService) *AccessHandler {
	return &AccessHandler{access: access}
}

// HasAccess returns the access decision for an enrollment.
func (h *AccessHandler) HasAccess(c echo.Context) error {
	enrollmentID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	decision, err := h.access.HasAccess(c.Request().Context(), enrollmentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, decision)
}
