/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The timeoff package and the stores return these (or wrap them), and the
  api package maps them onto HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - Bad input, rejected before any state changes
  2. Balance errors - Requested duration exceeds the spendable balance
  3. Conflict errors - Transition targets an application that is no longer
     in the expected status ("already resolved")
  4. Store errors - Durability failures
  5. Notify errors - Delivery failures (advisory, never rolled back)

USAGE:
    if errors.Is(err, generic.ErrConflict) {
        // someone else resolved it first; skip side effects
    }

SEE ALSO:
  - timeoff/engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP responses
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input is malformed or violates a rule
	// that can be checked without touching balances.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientBalance is returned when a duration exceeds the balance
	// of a capped category.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConflict is returned when a conditional update finds the record in a
	// different status than expected.
	ErrConflict = errors.New("already resolved")

	// ErrNotFound is returned when a referenced intern or application does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when creating a record whose identity already exists.
	ErrDuplicate = errors.New("already exists")

	// ErrStorage is returned when a store operation cannot be committed.
	ErrStorage = errors.New("storage failure")

	// ErrNotify is returned when a notification cannot be delivered.
	ErrNotify = errors.New("notification failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field and a human-readable reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Category  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s, requested %s",
		e.Category, FormatDays(e.Available), FormatDays(e.Requested))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ConflictError reports that a record was not in the expected status.
type ConflictError struct {
	ID     string
	Status string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("application %s already resolved (status %s)", e.ID, e.Status)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StorageError wraps a driver error with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// Storage wraps err as a *StorageError unless it is nil or already one of
// the domain errors that callers branch on.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicate) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is an "already resolved" condition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
