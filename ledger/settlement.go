/*
settlement.go - Payment settlement handler

PURPOSE:
  Accepts a payment confirmation (amount, method), validates it against the
  client's outstanding balance, transitions the named sessions to paid, and
  records a Payment row plus a payment_completed activity - all atomically.

PARTIAL PAYMENTS:
  The amount may be less than the sum of the named sessions. This system
  settles WHOLE sessions, not partial-session balances: once a session is
  named in a settlement it is fully closed, and the Payment row records the
  actual amount received. No auto-split or reconciliation is attempted.

IDEMPOTENCY:
  Re-settling a session that is already paid fails with InvalidStateError
  rather than double-recording income. Overpayment (amount above the client's
  outstanding balance at the moment of confirmation) is rejected with a
  ValidationError-kind OverpaymentError - checked, not assumed.

SEE ALSO:
  - request.go: pending requests fulfilled here when fully covered
  - summary.go: the outstanding-balance formula validated against
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTLEMENT HANDLER
// =============================================================================

type SettlementHandler struct {
	Store TxStore

	Now func() time.Time
}

func (sh *SettlementHandler) now() time.Time {
	if sh.Now != nil {
		return sh.Now()
	}
	return time.Now()
}

// MarkPaid records a payment against the named sessions and closes them.
//
// Preconditions:
//   - sessionIDs non-empty (ErrNoEligibleSessions otherwise)
//   - every session belongs to clientID and is unpaid or requested
//   - 0 < amount <= the client's outstanding balance
//
// If a pending request exists and this payment covers the last of its
// sessions, the request transitions to fulfilled.
func (sh *SettlementHandler) MarkPaid(ctx context.Context, clientID ClientID, sessionIDs []SessionID, amount decimal.Decimal, method PaymentMethod) (*Payment, error) {
	if len(sessionIDs) == 0 {
		return nil, ErrNoEligibleSessions
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !method.Valid() {
		return nil, &ValidationError{Field: "method", Message: "unknown payment method"}
	}

	now := sh.now()
	payment := Payment{
		ID:       PaymentID(uuid.NewString()),
		ClientID: clientID,
		Amount:   RoundCents(amount),
		Method:   method,
		PaidAt:   now,
	}

	err := sh.Store.WithTx(ctx, func(tx Store) error {
		open, err := tx.SessionsByClient(ctx, clientID, SessionUnpaid, SessionRequested)
		if err != nil {
			return err
		}
		outstanding := decimal.Zero
		byID := make(map[SessionID]*Session, len(open))
		for i := range open {
			outstanding = outstanding.Add(open[i].Amount)
			byID[open[i].ID] = &open[i]
		}
		outstanding = RoundCents(outstanding)

		// Resolve and state-check the named sessions BEFORE the balance
		// check: settling an already-paid session must fail as a state
		// machine violation, not as an overpayment.
		seen := make(map[SessionID]bool, len(sessionIDs))
		var settled []*Session
		var personHours = decimal.Zero
		for _, id := range sessionIDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			s, ok := byID[id]
			if !ok {
				// Not in the open set: missing, wrong client, or already
				// closed. Distinguish for the caller.
				full, err := tx.GetSession(ctx, id)
				if err != nil {
					return err
				}
				if full.ClientID != clientID {
					return &ValidationError{Field: "sessionIds", Message: "session " + string(id) + " does not belong to client"}
				}
				return &InvalidStateError{SessionID: id, Current: full.Status, Attempted: "settle"}
			}
			settled = append(settled, s)
			personHours = personHours.Add(s.PersonHours)
		}

		// Outstanding balance is computed inside the transaction so the
		// overpayment check sees the state at the moment of confirmation.
		if payment.Amount.GreaterThan(outstanding) {
			return &OverpaymentError{ClientID: clientID, Outstanding: outstanding, Requested: payment.Amount}
		}

		for _, s := range settled {
			s.Status = SessionPaid
			payment.SessionIDs = append(payment.SessionIDs, s.ID)
			if err := tx.UpdateSession(ctx, *s); err != nil {
				return err
			}
		}

		if err := sh.fulfillCoveredRequest(ctx, tx, clientID); err != nil {
			return err
		}

		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		return tx.AppendActivity(ctx, Activity{
			ID:        ActivityID(uuid.NewString()),
			ClientID:  clientID,
			Timestamp: now,
			Data: PaymentCompletedData{
				PaymentID:    payment.ID,
				Method:       method,
				SessionCount: len(settled),
				PersonHours:  personHours,
				Amount:       payment.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// fulfillCoveredRequest marks the client's pending request fulfilled once
// every session it covers is paid. Runs inside the settlement transaction.
func (sh *SettlementHandler) fulfillCoveredRequest(ctx context.Context, tx Store, clientID ClientID) error {
	pending, err := tx.PendingRequest(ctx, clientID)
	if err != nil || pending == nil {
		return err
	}

	for _, id := range pending.SessionIDs {
		s, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != SessionPaid {
			return nil // still open sessions in the batch
		}
	}
	return tx.UpdateRequestStatus(ctx, pending.ID, RequestFulfilled)
}
