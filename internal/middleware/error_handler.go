package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"enrollpay_echo/internal/apperrors"
)

// CustomErrorHandler maps engine error kinds onto JSON responses. Invariant
// violations surface as 500s; they are already logged at the ledger with full
// context and indicate a bug, so the body stays generic.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case apperrors.IsValidation(err):
		code = http.StatusUnprocessableEntity
		message = err.Error()
	case apperrors.IsConflict(err):
		code = http.StatusConflict
		message = err.Error()
	case apperrors.IsNotFound(err):
		code = http.StatusNotFound
		message = err.Error()
	case apperrors.IsInvariant(err):
		code = http.StatusInternalServerError
		message = "internal consistency error"
	default:
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		}
	}

	c.Logger().Error(err)

	if jsonErr := c.JSON(code, map[string]interface{}{
		"error":  message,
		"status": code,
	}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}
