/*
errors.go - Error taxonomy for the sale and stock core

PURPOSE:
  All error types in one place. Every failure path of the create/cancel
  protocols returns one of these so callers can tell "fix the request"
  apart from "try again later".

ERROR CATEGORIES:
  1. Validation errors - malformed request, rejected before any side effect
  2. Stock errors      - one or more lines exceed available stock
  3. Not-found errors  - sale, product or client does not resolve
  4. Persistence errors - the atomic commit failed; nothing partial persisted

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var stockErr *inventory.InsufficientStockError
      errors.As(err, &stockErr)
      // stockErr.Shortfalls lists every short line
  }

SEE ALSO:
  - sales/manager.go: produces these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed requests.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when requested quantities exceed stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is returned when the storage layer fails to commit.
	ErrPersistence = errors.New("persistence failure")

	// ErrDuplicateInvoice is returned when an invoice number collides with an
	// existing one. Safe to retry.
	ErrDuplicateInvoice = errors.New("duplicate invoice number")

	// ErrConflict is returned when the database aborted a transaction because
	// of a concurrent one (deadlock, serialization failure). Safe to retry.
	ErrConflict = errors.New("concurrent transaction conflict")

	// ErrLateShortfall is returned by the ledger when a guarded decrement
	// affected no rows: stock changed between the check and the update.
	ErrLateShortfall = errors.New("stock changed before decrement")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientStockError carries every short line of a request, not just the first.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		if s.Missing {
			parts = append(parts, fmt.Sprintf("product %d not available", s.ProductID))
			continue
		}
		parts = append(parts, fmt.Sprintf("product %d: requested %d, available %d",
			s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// NotFoundError names the kind and id of the missing record.
type NotFoundError struct {
	Kind string // "sale", "product", "client"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// PersistenceError wraps a storage failure of an atomic operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is reports ErrPersistence in addition to the wrapped chain.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if retrying the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateInvoice) ||
		errors.Is(err, ErrConflict)
}

// IsClientError returns true if the caller must change the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
