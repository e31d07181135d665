package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRunInProgress  = errors.New("run already in progress")
	ErrLockHeld       = errors.New("lock already held")
	ErrRefreshBlocked = errors.New("refresh blocked by non-terminal or failed load")
	ErrRetryExhausted = errors.New("retry limit reached")
	ErrContextDone    = errors.New("context cancelled")
)

// ValidationError describes a single per-record rule violation found while
// parsing or validating a record. Validation errors are counted into batch
// totals and never abort a batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
