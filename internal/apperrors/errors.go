// Package apperrors defines the error kinds the engine reports to callers.
// Charge failures are not errors here; they are ordinary obligation states.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks requests rejected before anything is persisted.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks an optimistic-version mismatch; the caller should
	// reload and retry.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an unknown enrollment, obligation or payment.
	ErrNotFound = errors.New("not found")
	// ErrInvariantViolation marks a failed money-conservation check. The
	// mutation is rolled back; this indicates a bug, not user error.
	ErrInvariantViolation = errors.New("invariant violation")
)

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Invariantf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsInvariant(err error) bool  { return errors.Is(err, ErrInvariantViolation) }
