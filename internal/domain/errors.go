package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrInvalidState  = errors.New("invalid state")
	ErrTransient     = errors.New("transient failure, retry later")

	ErrTicketNotFound     = fmt.Errorf("ticket %w", ErrNotFound)
	ErrConnectionNotFound = fmt.Errorf("connection %w", ErrNotFound)
	ErrSelfDeal           = fmt.Errorf("%w: cannot create a deal on your own ticket", ErrAuthorization)
	ErrNotOwner           = fmt.Errorf("%w: only the ticket owner may do this", ErrAuthorization)
	ErrNotParty           = fmt.Errorf("%w: not a party to this connection", ErrAuthorization)

	ErrIdempotencyConflict = fmt.Errorf("%w: request with this idempotency key is in progress", ErrInvalidState)
	ErrIdempotencyMismatch = &ValidationError{Field: "Idempotency-Key", Reason: "reused with a different request body"}
)

// ValidationError describes a single malformed or out-of-range field.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidState wraps ErrInvalidState with a description of the rejected operation.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Transient wraps a storage failure so callers can tell it is safe to retry.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
