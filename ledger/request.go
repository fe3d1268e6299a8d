/*
request.go - Payment request coordinator

PURPOSE:
  Batches eligible (unpaid) sessions into a payment request and transitions
  them to requested. Enforces the invariant: at most one pending request per
  client.

STATE MACHINE:
  none -> pending -> fulfilled

  A session may belong to at most one pending request. Sessions move
  requested -> paid only through settlement (settlement.go); the request
  itself moves to fulfilled when a payment covers all of its sessions.

CONCURRENCY CONTRACT:
  Two concurrent RequestPayment calls for the same client must yield exactly
  one pending request and one ConflictError. The pre-check here narrows the
  race and names the existing request; the store's conditional insert
  (uniqueness on pending-per-client) closes it. The rejected caller gets a
  distinguishable "already requested" condition and can refresh.

SEE ALSO:
  - store.go: CreateRequestIfNonePending contract
  - settlement.go: request fulfillment
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST COORDINATOR
// =============================================================================

type RequestCoordinator struct {
	Store    TxStore
	Provider ProviderID

	Now func() time.Time
}

func (rc *RequestCoordinator) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

// RequestPayment creates a pending payment request covering the named unpaid
// sessions. With an empty sessionIDs, all of the client's unpaid sessions are
// batched (the common "request everything" tap).
//
// Fails with:
//   - ConflictError if a pending request already exists (names it)
//   - NotFoundError if a named session does not exist
//   - ValidationError if a named session belongs to another client
//   - InvalidStateError if a named session is not unpaid
//   - NoEligibleSessionsError (ErrNoEligibleSessions) if the eligible set is empty
func (rc *RequestCoordinator) RequestPayment(ctx context.Context, clientID ClientID, sessionIDs []SessionID) (*PaymentRequest, error) {
	// Fast path: surface the existing request. The conditional insert below
	// re-verifies at write time.
	if existing, err := rc.Store.PendingRequest(ctx, clientID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &ConflictError{Kind: "pending_request", ClientID: clientID, ExistingID: string(existing.ID)}
	}

	now := rc.now()
	request := PaymentRequest{
		ID:         RequestID(uuid.NewString()),
		ClientID:   clientID,
		ProviderID: rc.Provider,
		Status:     RequestPending,
		CreatedAt:  now,
	}

	err := rc.Store.WithTx(ctx, func(tx Store) error {
		sessions, err := rc.eligibleSessions(ctx, tx, clientID, sessionIDs)
		if err != nil {
			return err
		}

		total := decimal.Zero
		hours := decimal.Zero
		for i := range sessions {
			total = total.Add(sessions[i].Amount)
			hours = hours.Add(sessions[i].PersonHours)
			request.SessionIDs = append(request.SessionIDs, sessions[i].ID)
		}
		request.TotalAmount = RoundCents(total)
		request.TotalPersonHours = hours

		if err := tx.CreateRequestIfNonePending(ctx, request); err != nil {
			return err
		}

		for i := range sessions {
			sessions[i].Status = SessionRequested
			if err := tx.UpdateSession(ctx, sessions[i]); err != nil {
				return err
			}
		}

		return tx.AppendActivity(ctx, Activity{
			ID:        ActivityID(uuid.NewString()),
			ClientID:  clientID,
			Timestamp: now,
			Data: PaymentRequestData{
				BatchID:      request.ID,
				SessionCount: len(sessions),
				PersonHours:  hours,
				Amount:       request.TotalAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// eligibleSessions resolves and validates the session set for a request.
func (rc *RequestCoordinator) eligibleSessions(ctx context.Context, tx Store, clientID ClientID, sessionIDs []SessionID) ([]Session, error) {
	if len(sessionIDs) == 0 {
		sessions, err := tx.SessionsByClient(ctx, clientID, SessionUnpaid)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, ErrNoEligibleSessions
		}
		return sessions, nil
	}

	seen := make(map[SessionID]bool, len(sessionIDs))
	sessions := make([]Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		s, err := tx.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.ClientID != clientID {
			return nil, &ValidationError{Field: "sessionIds", Message: "session " + string(id) + " does not belong to client"}
		}
		if s.Status != SessionUnpaid {
			return nil, &InvalidStateError{SessionID: id, Current: s.Status, Attempted: "request payment for"}
		}
		sessions = append(sessions, *s)
	}

	if len(sessions) == 0 {
		return nil, ErrNoEligibleSessions
	}
	return sessions, nil
}

// GetPendingRequest returns the client's pending request, or nil.
func (rc *RequestCoordinator) GetPendingRequest(ctx context.Context, clientID ClientID) (*PaymentRequest, error) {
	return rc.Store.PendingRequest(ctx, clientID)
}
