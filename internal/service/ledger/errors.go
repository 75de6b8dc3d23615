package ledger

import (
	"errors"
	"fmt"

	"roombook/backend/internal/domain"
	"roombook/backend/internal/store"
)

const (
	ReasonMissingField     = "missing field"
	ReasonTooLong          = "too long"
	ReasonInvalidDate      = "invalid date"
	ReasonInvalidTime      = "invalid time"
	ReasonInvalidTimeRange = "invalid time range"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("booking not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError names the first input field that failed and the rule it broke.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Field
}

func validationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError carries the committed booking that blocked an insert. Existing is
// zero when only the store constraint caught the overlap.
type ConflictError struct {
	Date     domain.Date
	Existing domain.Booking
}

func (e *ConflictError) Error() string {
	if e.Existing.ID == 0 {
		return fmt.Sprintf("time range overlap on %s", e.Date)
	}
	return fmt.Sprintf("time range overlap with %s on %s", e.Existing.Interval(), e.Existing.Date)
}

func (e *ConflictError) Unwrap() error {
	return store.ErrConflict
}
