/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the narrow interface between the domain services and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Row-level reads and writes for clients, sessions, requests,
           payments, and the append-only activity journal.
  TxStore: Store plus WithTx for atomic multi-row commits.

CONDITIONAL INSERTS:
  The two uniqueness invariants are enforced AT THE STORE, not by callers:

    CreateSessionIfNoActive:   one active session per (provider, client)
    CreateRequestIfNonePending: one pending request per client

  Both perform the existence check and the insert under the same
  transaction/lock and return ConflictError when the slot is taken. Service
  level pre-checks exist only as a fast path for better error payloads; the
  conditional insert is the safety mechanism.

ATOMICITY:
  Every ledger-mutating operation (start, end, request, settle) runs inside
  WithTx: either all of its row changes commit (session status + new
  request/payment row + activity append) or none do. A session must never be
  left in requested/paid without the corresponding request/payment row.

ACTIVITY APPEND-ONLY CONTRACT:
  AppendActivity is the only write on activities. No update, no delete. The
  store assigns a monotonically increasing Seq used to break timestamp ties.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite (partial unique indexes)
  - ledger/store/memory.go: in-memory for tests and dev

SEE ALSO:
  - session.go, request.go, settlement.go: consumers of these interfaces
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Repository surface the persistence layer must provide
// =============================================================================

type Store interface {
	// --- Clients ---

	CreateClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id ClientID) (*Client, error)
	ListClients(ctx context.Context, provider ProviderID) ([]Client, error)
	UpdateClientRate(ctx context.Context, id ClientID, rate decimal.Decimal) error

	// --- Sessions ---

	// CreateSessionIfNoActive inserts the session, failing with ConflictError
	// when the inserted session is ACTIVE and an active session already exists
	// for (ProviderID, ClientID). Non-active inserts (seeding ended sessions)
	// never conflict. Check and insert are atomic.
	CreateSessionIfNoActive(ctx context.Context, s Session) error

	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// UpdateSession replaces the row. Returns NotFoundError if missing.
	UpdateSession(ctx context.Context, s Session) error

	// SessionsByClient returns the client's sessions, oldest first. With no
	// statuses given, all sessions are returned.
	SessionsByClient(ctx context.Context, client ClientID, statuses ...SessionStatus) ([]Session, error)

	// SessionsByClients is the single-round-trip variant used by the batched
	// summary path.
	SessionsByClients(ctx context.Context, clients []ClientID, statuses ...SessionStatus) ([]Session, error)

	// ActiveSession returns the active session for (provider, client), or
	// (nil, nil) if none exists.
	ActiveSession(ctx context.Context, provider ProviderID, client ClientID) (*Session, error)

	// --- Payment requests ---

	// CreateRequestIfNonePending inserts the request only if the client has
	// no pending request. Returns ConflictError otherwise. Check and insert
	// are atomic.
	CreateRequestIfNonePending(ctx context.Context, r PaymentRequest) error

	// PendingRequest returns the client's pending request, or (nil, nil).
	PendingRequest(ctx context.Context, client ClientID) (*PaymentRequest, error)

	UpdateRequestStatus(ctx context.Context, id RequestID, status RequestStatus) error

	// --- Payments ---

	CreatePayment(ctx context.Context, p Payment) error

	// --- Activity journal (append-only) ---

	AppendActivity(ctx context.Context, a Activity) error

	// Activities returns entries ordered by (timestamp, seq) ascending.
	Activities(ctx context.Context, filter ActivityFilter) ([]Activity, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-row commits
// =============================================================================

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back; otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
