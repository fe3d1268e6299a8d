/*
Package ledger provides the core session-payment ledger engine.

PURPOSE:
  This package contains the domain model and services for tracking billable
  work sessions against clients, aggregating outstanding balances, batching
  unpaid sessions into payment requests, and recording settlements.

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: One timed unit of billable work with a forward-only status
  - PaymentRequest: An outstanding ask for money covering unpaid sessions
  - Payment: An immutable record of money received
  - Client: The party being billed, with a current hourly rate
  - Money helpers: cent rounding and integer-cent conversion

DESIGN PRINCIPLES:
  1. Immutability: a session's duration and amount never change once ended
  2. Precision: uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: strong typing for IDs prevents mixing client/session IDs
  4. Forward-only: session status transitions never move backward

USAGE:
  s := ledger.Session{ClientID: "client-1", CrewSize: 2, Status: ledger.SessionActive}
  if s.Status.CanTransitionTo(ledger.SessionUnpaid) { ... }

SEE ALSO:
  - session.go: Session lifecycle operations
  - summary.go: Derived money-state aggregation
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type ProviderID string
type SessionID string
type RequestID string
type PaymentID string
type ActivityID string

// =============================================================================
// MONEY - Currency arithmetic helpers
// =============================================================================

// RoundCents rounds a currency amount to the nearest cent, half away from zero.
// Applied at every boundary crossing: persisted fields, DTOs, activity payloads.
// Hour quantities are NOT rounded; they keep full precision until display.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cents converts a currency amount to integer cents (round half away from zero).
// Used where a value crosses a serialization boundary and floating-point drift
// must be impossible (MoneyState.BalanceDueCents).
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// =============================================================================
// CLIENT - The party being billed
// =============================================================================

// Client holds the current hourly rate. The rate is a live setting: sessions
// snapshot it at creation and never re-read it, so rate edits only affect
// future sessions.
type Client struct {
	ID         ClientID
	ProviderID ProviderID
	Name       string
	HourlyRate decimal.Decimal
	CreatedAt  time.Time
}

// =============================================================================
// SESSION - One unit of billable work
// =============================================================================

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"    // Work in progress, no amount yet
	SessionUnpaid    SessionStatus = "unpaid"    // Ended, amount fixed, not yet requested
	SessionRequested SessionStatus = "requested" // Included in a pending payment request
	SessionPaid      SessionStatus = "paid"      // Settled by a payment
)

// CanTransitionTo reports whether moving to next is a legal forward transition.
// The machine is: active -> unpaid -> requested -> paid, with unpaid -> paid
// also legal (direct settlement without a formal request). No transition ever
// moves backward.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionActive:
		return next == SessionUnpaid
	case SessionUnpaid:
		return next == SessionRequested || next == SessionPaid
	case SessionRequested:
		return next == SessionPaid
	default:
		return false
	}
}

// Session is one timed unit of billable work for a client.
//
// INVARIANTS:
//   - Exactly one active session per (ProviderID, ClientID) at any time.
//   - HourlyRate is snapshotted at creation and never recomputed.
//   - DurationHours, PersonHours and Amount are set once at termination and
//     are immutable afterward.
type Session struct {
	ID         SessionID
	ClientID   ClientID
	ProviderID ProviderID

	StartTime time.Time
	EndTime   *time.Time

	// Snapshot of the client's rate at StartTime.
	HourlyRate decimal.Decimal

	// Number of people working; billable hours scale by this.
	CrewSize int

	// Fixed at EndSession. Zero while active.
	DurationHours decimal.Decimal
	PersonHours   decimal.Decimal
	Amount        decimal.Decimal

	Status    SessionStatus
	CreatedAt time.Time
}

// Ended reports whether the session has a fixed end time (and therefore a
// fixed duration and amount).
func (s *Session) Ended() bool {
	return s.EndTime != nil
}

// =============================================================================
// PAYMENT REQUEST - A batch of unpaid sessions asking for money
// =============================================================================

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"

	// RequestExpired exists in stored data from retention flows; nothing in
	// this engine produces it, but reads must tolerate it.
	RequestExpired RequestStatus = "expired"
)

// PaymentRequest batches one or more unpaid sessions into a single ask.
//
// INVARIANT: at most one pending request per client. Enforced twice: a
// coordinator pre-check (fast path) and a conditional insert at the store
// (the actual guarantee).
type PaymentRequest struct {
	ID         RequestID
	ClientID   ClientID
	ProviderID ProviderID
	SessionIDs []SessionID

	TotalAmount      decimal.Decimal
	TotalPersonHours decimal.Decimal

	Status    RequestStatus
	CreatedAt time.Time
}

// Covers reports whether the request includes the given session.
func (r *PaymentRequest) Covers(id SessionID) bool {
	for _, sid := range r.SessionIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// =============================================================================
// PAYMENT - Record of money received
// =============================================================================

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodZelle        PaymentMethod = "zelle"
	MethodPayPal       PaymentMethod = "paypal"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodOther        PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodZelle, MethodPayPal, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

// Payment records money received against a named set of sessions. The amount
// may differ from the sum of the named sessions (partial payment toward the
// client's total); the named sessions are fully closed either way. Payments
// are written once and never mutated.
type Payment struct {
	ID         PaymentID
	ClientID   ClientID
	SessionIDs []SessionID
	Amount     decimal.Decimal
	Method     PaymentMethod
	PaidAt     time.Time
}
