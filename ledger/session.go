/*
session.go - Session lifecycle manager

PURPOSE:
  Owns creation, active-session lookup, crew edits, and termination of work
  sessions. The money amount is computed exactly once, at the active->unpaid
  transition, and becomes immutable. This prevents balance drift if the
  client's hourly rate changes later, and makes unpaid/requested/paid
  sessions safe to sum without recomputation.

LIFECYCLE:
  StartSession    active session created, rate snapshotted, session_start logged
  UpdateCrewSize  legal only while active (editing crew after end would
                  retroactively change a committed amount)
  EndSession      duration/person-hours/amount fixed, status -> unpaid,
                  session_end logged with a snapshot copy of the numbers

IDEMPOTENCY:
  The one-active-session invariant is enforced by the store's conditional
  insert. The pre-check here only exists to return a ConflictError that names
  the existing session, so the UI can reconcile instead of erroring blind.

SEE ALSO:
  - types.go: Session and the status machine
  - store.go: CreateSessionIfNoActive contract
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SESSION SERVICE
// =============================================================================

// SessionService manages the session lifecycle for a single provider.
// Construct with NewService; all dependencies are explicit (no ambient
// globals).
type SessionService struct {
	Store    TxStore
	Provider ProviderID

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (ss *SessionService) now() time.Time {
	if ss.Now != nil {
		return ss.Now()
	}
	return time.Now()
}

// StartSession begins a work session for the client. The client's current
// hourly rate is snapshotted onto the session and never re-read.
//
// Fails with ConflictError if an active session already exists for this
// client, NotFoundError if the client is unknown, ValidationError if
// crewSize < 1.
func (ss *SessionService) StartSession(ctx context.Context, clientID ClientID, crewSize int) (*Session, error) {
	if crewSize < 1 {
		return nil, &ValidationError{Field: "crewSize", Message: "must be at least 1"}
	}

	client, err := ss.Store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	// Fast path: name the existing session in the conflict. The conditional
	// insert below is the actual guard.
	if existing, err := ss.Store.ActiveSession(ctx, ss.Provider, clientID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &ConflictError{Kind: "active_session", ClientID: clientID, ExistingID: string(existing.ID)}
	}

	now := ss.now()
	session := Session{
		ID:         SessionID(uuid.NewString()),
		ClientID:   clientID,
		ProviderID: ss.Provider,
		StartTime:  now,
		HourlyRate: client.HourlyRate,
		CrewSize:   crewSize,
		Status:     SessionActive,
		CreatedAt:  now,
	}

	err = ss.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateSessionIfNoActive(ctx, session); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, Activity{
			ID:        ActivityID(uuid.NewString()),
			ClientID:  clientID,
			Timestamp: now,
			Data: SessionStartData{
				SessionID:  session.ID,
				CrewSize:   crewSize,
				HourlyRate: client.HourlyRate,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession terminates an active session, fixing duration, person-hours and
// amount forever.
//
//	duration    = (now - startTime) in hours
//	personHours = duration * crewSize, unless personHoursOverride is given
//	amount      = personHours * hourlyRate, rounded to the cent
//
// The override is a one-time snapshot applied here; it cannot be edited
// afterward. Pass nil for the computed value.
//
// Fails with NotFoundError if the session is missing, InvalidStateError if it
// is not active, ValidationError if the override is not positive.
func (ss *SessionService) EndSession(ctx context.Context, sessionID SessionID, personHoursOverride *decimal.Decimal) (*Session, error) {
	session, err := ss.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != SessionActive {
		return nil, &InvalidStateError{SessionID: sessionID, Current: session.Status, Attempted: "end"}
	}

	now := ss.now()
	duration := decimal.NewFromFloat(now.Sub(session.StartTime).Hours())

	personHours := duration.Mul(decimal.NewFromInt(int64(session.CrewSize)))
	if personHoursOverride != nil {
		if !personHoursOverride.IsPositive() {
			return nil, &ValidationError{Field: "personHours", Message: "override must be positive"}
		}
		personHours = *personHoursOverride
	}

	amount := RoundCents(personHours.Mul(session.HourlyRate))

	session.EndTime = &now
	session.DurationHours = duration
	session.PersonHours = personHours
	session.Amount = amount
	session.Status = SessionUnpaid

	err = ss.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateSession(ctx, *session); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, Activity{
			ID:        ActivityID(uuid.NewString()),
			ClientID:  session.ClientID,
			Timestamp: now,
			Data: SessionEndData{
				SessionID:     session.ID,
				DurationHours: duration,
				PersonHours:   personHours,
				Amount:        amount,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	return session, nil
}

// UpdateCrewSize changes the crew size of an ACTIVE session. Once a session
// has ended its amount is committed, so crew edits are rejected with
// InvalidStateError.
func (ss *SessionService) UpdateCrewSize(ctx context.Context, sessionID SessionID, crewSize int) (*Session, error) {
	if crewSize < 1 {
		return nil, &ValidationError{Field: "crewSize", Message: "must be at least 1"}
	}

	session, err := ss.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != SessionActive {
		return nil, &InvalidStateError{SessionID: sessionID, Current: session.Status, Attempted: "update crew size of"}
	}

	session.CrewSize = crewSize
	if err := ss.Store.UpdateSession(ctx, *session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetActiveSession returns the client's running session, or nil if none.
// Pure lookup, no side effects.
func (ss *SessionService) GetActiveSession(ctx context.Context, clientID ClientID) (*Session, error) {
	return ss.Store.ActiveSession(ctx, ss.Provider, clientID)
}
