package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"enrollpay_echo/internal/apperrors"
	"enrollpay_echo/internal/models"
	"enrollpay_echo/internal/services"
)

// ScheduleHandler serves schedule creation and ledger reads.
type ScheduleHandler struct {
	db     *gorm.DB
	ledger *services.LedgerService
}

func NewScheduleHandler(db *gorm.DB, ledger *services.LedgerService) *ScheduleHandler {
	return &ScheduleHandler{db: db, ledger: ledger}
}

// CreateSchedule generates the obligation set for an enrollment from its plan.
func (h *ScheduleHandler) CreateSchedule(c echo.Context) error {
	enrollmentID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validationf("invalid JSON payload")
	}
	if req.TotalAmount < 0 {
		return apperrors.Validationf("total_amount must not be negative")
	}
	if req.Currency == "" {
		return apperrors.Validationf("currency is required")
	}

	enrollment, err := h.ledger.CreateSchedule(c.Request().Context(),
		enrollmentID, req.TotalAmount, req.Currency, req.PlanID, req.StartDate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, enrollment)
}

// GetSchedule returns the enrollment with its obligations and derived sums.
func (h *ScheduleHandler) GetSchedule(c echo.Context) error {
	enrollmentID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var enrollment models.Enrollment
	err = h.db.WithContext(c.Request().Context()).
		Preload("Obligations", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_number asc")
		}).
		First(&enrollment, enrollmentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFoundf("enrollment %d", enrollmentID)
		}
		return err
	}

	paid, err := h.ledger.PaidAmount(c.Request().Context(), enrollmentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"enrollment":        enrollment,
		"paid_amount":       paid,
		"remaining_balance": enrollment.TotalAmount - paid,
	})
}
