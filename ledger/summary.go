/*
summary.go - Money state aggregation

PURPOSE:
  The single canonical formula for "how much does this client owe". Every
  screen-facing balance comes from here; no call site re-derives it with its
  own rounding or filters.

FORMULAS:
  unpaidBalance       = sum(amount) over sessions with status unpaid
  requestedBalance    = sum(amount) over sessions with status requested
  totalUnpaidBalance  = unpaidBalance + requestedBalance
  unpaidPersonHours   = sum(personHours) over the same set
  paymentStatus       = unpaid if any unpaid session exists,
                        else requested if any requested session exists,
                        else paid

  The aggregator is a pure function of current session rows; it holds no
  state. Any caching (the UI's ~30s staleness window) is caller-owned, see
  cache.go.

BATCHED PATH:
  SummariesForClients fetches all sessions for all requested clients in one
  round trip and groups in memory, to avoid an N-query fan-out when rendering
  a client list. It MUST produce results identical to calling Summary once
  per id; both paths share summarize().

INTEGER-SAFE UNITS:
  MoneyState exposes BalanceDueCents and UnpaidDurationSec so the values
  survive serialization boundaries without floating-point drift.

SEE ALSO:
  - types.go: RoundCents / Cents
  - cache.go: caller-owned TTL cache
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY - Derived, never stored
// =============================================================================

type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusRequested PaymentStatus = "requested"
	PaymentStatusPaid      PaymentStatus = "paid"
)

// Summary is the per-client money view every screen depends on.
type Summary struct {
	ClientID ClientID

	UnpaidBalance      decimal.Decimal
	RequestedBalance   decimal.Decimal
	TotalUnpaidBalance decimal.Decimal
	UnpaidPersonHours  decimal.Decimal

	UnpaidSessions    int
	RequestedSessions int

	HasActiveSession bool
	PaymentStatus    PaymentStatus
}

// ZeroSummary is what a client with no sessions gets.
func ZeroSummary(id ClientID) Summary {
	return Summary{
		ClientID:           id,
		UnpaidBalance:      decimal.Zero,
		RequestedBalance:   decimal.Zero,
		TotalUnpaidBalance: decimal.Zero,
		UnpaidPersonHours:  decimal.Zero,
		PaymentStatus:      PaymentStatusPaid,
	}
}

// MoneyState folds the latest pending request and integer-safe units into the
// summary.
type MoneyState struct {
	Summary

	BalanceDueCents   int64
	UnpaidDurationSec int64

	LastPendingRequest *PaymentRequest
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes derived money state. Stateless; safe for concurrent use.
type Aggregator struct {
	Store Store
}

// Summary computes the client's money view from current session rows.
func (ag *Aggregator) Summary(ctx context.Context, clientID ClientID) (*Summary, error) {
	sessions, err := ag.Store.SessionsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	s := summarize(clientID, sessions)
	return &s, nil
}

// SummariesForClients is the batched variant: one fetch, grouped in memory.
// Clients with no sessions get a zero-valued summary. Result order follows
// the input ids.
func (ag *Aggregator) SummariesForClients(ctx context.Context, clientIDs []ClientID) ([]Summary, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}

	sessions, err := ag.Store.SessionsByClients(ctx, clientIDs)
	if err != nil {
		return nil, err
	}

	grouped := make(map[ClientID][]Session, len(clientIDs))
	for _, s := range sessions {
		grouped[s.ClientID] = append(grouped[s.ClientID], s)
	}

	summaries := make([]Summary, 0, len(clientIDs))
	for _, id := range clientIDs {
		summaries = append(summaries, summarize(id, grouped[id]))
	}
	return summaries, nil
}

// MoneyState computes the summary plus the pending request and integer-safe
// balance units.
func (ag *Aggregator) MoneyState(ctx context.Context, clientID ClientID) (*MoneyState, error) {
	summary, err := ag.Summary(ctx, clientID)
	if err != nil {
		return nil, err
	}

	pending, err := ag.Store.PendingRequest(ctx, clientID)
	if err != nil {
		return nil, err
	}

	secs := summary.UnpaidPersonHours.Mul(decimal.NewFromInt(3600)).Round(0).IntPart()

	return &MoneyState{
		Summary:            *summary,
		BalanceDueCents:    Cents(summary.TotalUnpaidBalance),
		UnpaidDurationSec:  secs,
		LastPendingRequest: pending,
	}, nil
}

// summarize is the one canonical fold. Both the single and batched paths go
// through here, which is what makes them provably equivalent.
func summarize(clientID ClientID, sessions []Session) Summary {
	s := ZeroSummary(clientID)

	for _, sess := range sessions {
		switch sess.Status {
		case SessionActive:
			s.HasActiveSession = true
		case SessionUnpaid:
			s.UnpaidBalance = s.UnpaidBalance.Add(sess.Amount)
			s.UnpaidPersonHours = s.UnpaidPersonHours.Add(sess.PersonHours)
			s.UnpaidSessions++
		case SessionRequested:
			s.RequestedBalance = s.RequestedBalance.Add(sess.Amount)
			s.UnpaidPersonHours = s.UnpaidPersonHours.Add(sess.PersonHours)
			s.RequestedSessions++
		}
	}

	s.TotalUnpaidBalance = RoundCents(s.UnpaidBalance.Add(s.RequestedBalance))
	s.UnpaidBalance = RoundCents(s.UnpaidBalance)
	s.RequestedBalance = RoundCents(s.RequestedBalance)

	// Status priority: unpaid > requested > paid.
	switch {
	case s.UnpaidSessions > 0:
		s.PaymentStatus = PaymentStatusUnpaid
	case s.RequestedSessions > 0:
		s.PaymentStatus = PaymentStatusRequested
	default:
		s.PaymentStatus = PaymentStatusPaid
	}

	return s
}
