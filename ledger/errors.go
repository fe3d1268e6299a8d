/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is/errors.As; the API layer maps
  them to HTTP statuses.

ERROR CATEGORIES:
  1. Validation errors  - malformed input, caller should re-prompt
  2. Not-found errors   - referenced row does not exist
  3. Invalid-state      - operation violates the session/request state machine
  4. Conflict           - an idempotency guard tripped ("already in progress")
  5. No-eligible        - nothing to request/settle; user-facing, not a failure

  Transport/store failures are deliberately NOT in this taxonomy: a timeout
  means unknown outcome and must never be conflated with InvalidStateError.
  Those propagate as plain wrapped errors.

USAGE:
  if ledger.IsConflict(err) {
      // refresh and show the existing state
  }

SEE ALSO:
  - session.go, request.go, settlement.go: producers of these errors
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced session/client/request is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation violates the session or
	// request state machine (ending a non-active session, settling a paid one).
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConflict is returned when an idempotency guard trips: a duplicate
	// active session, a duplicate pending request, or a mutation already in
	// flight for the same client.
	ErrConflict = errors.New("conflicting operation")

	// ErrNoEligibleSessions is returned when a request or settlement targets
	// an empty eligible set. User-facing "nothing to do", not a system failure.
	ErrNoEligibleSessions = errors.New("no eligible sessions")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input on a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing row.
type NotFoundError struct {
	Kind string // "session", "client", "request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError reports a state machine violation with enough detail for
// the caller to refresh and re-decide.
type InvalidStateError struct {
	SessionID SessionID
	Current   SessionStatus
	Attempted string // operation that was attempted, e.g. "end", "settle"
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session %s in status %q", e.Attempted, e.SessionID, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ConflictError reports a tripped idempotency guard. ExistingID names the row
// that already holds the slot, so the caller can show it instead of erroring
// generically.
type ConflictError struct {
	Kind       string // "active_session", "pending_request", "in_flight"
	ClientID   ClientID
	ExistingID string
}

func (e *ConflictError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("%s already exists for client %s (%s)", e.Kind, e.ClientID, e.ExistingID)
	}
	return fmt.Sprintf("%s for client %s", e.Kind, e.ClientID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// OverpaymentError reports a settlement amount exceeding the client's
// outstanding balance at the moment of confirmation.
type OverpaymentError struct {
	ClientID    ClientID
	Outstanding decimal.Decimal
	Requested   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %v exceeds outstanding balance %v for client %s",
		e.Requested, e.Outstanding, e.ClientID)
}

func (e *OverpaymentError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsNoEligible(err error) bool   { return errors.Is(err, ErrNoEligibleSessions) }

// IsClientError returns true if the error is the caller's fault and a retry
// of the same call cannot succeed.
func IsClientError(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsInvalidState(err) ||
		IsConflict(err) || IsNoEligible(err)
}
