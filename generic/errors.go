/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context; the HTTP layer
  maps them to status codes with the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Lookup errors     - NotFound
  2. Lifecycle errors  - InvalidStateTransition, InvalidOperation, Forbidden
  3. Input errors      - Validation
  4. Store errors      - PersistenceConflict, DuplicateIdempotencyKey
  5. Transport errors  - ConnectionFailure (absorbed by notify, never surfaced)

USAGE:
    if errors.Is(err, generic.ErrPersistenceConflict) {
        // re-read and retry once
    }

SEE ALSO:
  - leave/service.go: Produces lifecycle errors
  - notify/hub.go: Absorbs ConnectionFailure
  - api/handlers.go: writeServiceError status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned for unknown request or employee ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition is returned when an operation is not legal
	// from the request's current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidOperation is returned when a field does not apply to the
	// request kind, e.g. a discount on a vacation.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrValidation is returned for malformed ranges and negative amounts.
	ErrValidation = errors.New("validation failed")

	// ErrPersistenceConflict is returned when a conditional update lost the race.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrConnectionFailure marks a failed or stalled send on a live connection.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrForbidden is returned when the actor's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateIdempotencyKey is returned when a balance effect with the same
	// key was already applied. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "request", "employee", "inconsistency"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError describes an operation refused by the state machine.
type TransitionError struct {
	RequestID string
	From      string
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in state %s", e.Operation, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// OperationError describes a field or operation that does not apply to a kind.
type OperationError struct {
	Kind      string
	Operation string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s is not applicable to %s requests", e.Operation, e.Kind)
}

func (e *OperationError) Unwrap() error { return ErrInvalidOperation }

// ValidationError points at the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrForbidden)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
