// Package store provides an in-memory ledger.TxStore implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/session-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	clients  map[ledger.ClientID]ledger.Client
	sessions map[ledger.SessionID]ledger.Session
	requests map[ledger.RequestID]ledger.PaymentRequest
	payments map[ledger.PaymentID]ledger.Payment

	activities []ledger.Activity
	nextSeq    int64

	// txMu serializes transactions; snapshots provide rollback.
	txMu sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		clients:  make(map[ledger.ClientID]ledger.Client),
		sessions: make(map[ledger.SessionID]ledger.Session),
		requests: make(map[ledger.RequestID]ledger.PaymentRequest),
		payments: make(map[ledger.PaymentID]ledger.Payment),
		nextSeq:  1,
	}
}

// =============================================================================
// TRANSACTIONS - Snapshot-based rollback
// =============================================================================

// WithTx runs fn with all-or-nothing semantics. Transactions are serialized;
// on error the pre-transaction snapshot is restored.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	clients    map[ledger.ClientID]ledger.Client
	sessions   map[ledger.SessionID]ledger.Session
	requests   map[ledger.RequestID]ledger.PaymentRequest
	payments   map[ledger.PaymentID]ledger.Payment
	activities []ledger.Activity
	nextSeq    int64
}

func (m *Memory) snapshot() memSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memSnapshot{
		clients:    make(map[ledger.ClientID]ledger.Client, len(m.clients)),
		sessions:   make(map[ledger.SessionID]ledger.Session, len(m.sessions)),
		requests:   make(map[ledger.RequestID]ledger.PaymentRequest, len(m.requests)),
		payments:   make(map[ledger.PaymentID]ledger.Payment, len(m.payments)),
		activities: make([]ledger.Activity, len(m.activities)),
		nextSeq:    m.nextSeq,
	}
	for k, v := range m.clients {
		s.clients[k] = v
	}
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	for k, v := range m.requests {
		s.requests[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	copy(s.activities, m.activities)
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients = s.clients
	m.sessions = s.sessions
	m.requests = s.requests
	m.payments = s.payments
	m.activities = s.activities
	m.nextSeq = s.nextSeq
}

// =============================================================================
// CLIENTS
// =============================================================================

func (m *Memory) CreateClient(_ context.Context, c ledger.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[c.ID]; exists {
		return &ledger.ConflictError{Kind: "client", ClientID: c.ID, ExistingID: string(c.ID)}
	}
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) GetClient(_ context.Context, id ledger.ClientID) (*ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "client", ID: string(id)}
	}
	return &c, nil
}

func (m *Memory) ListClients(_ context.Context, provider ledger.ProviderID) ([]ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Client
	for _, c := range m.clients {
		if c.ProviderID == provider {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) UpdateClientRate(_ context.Context, id ledger.ClientID, rate decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "client", ID: string(id)}
	}
	c.HourlyRate = rate
	m.clients[id] = c
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSessionIfNoActive performs the active-existence check and the insert
// under one lock, mirroring the database-level partial unique index. Like the
// partial index, the guard only constrains ACTIVE rows: inserting an already
// ended session never conflicts.
func (m *Memory) CreateSessionIfNoActive(_ context.Context, s ledger.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Status == ledger.SessionActive {
		for _, existing := range m.sessions {
			if existing.ProviderID == s.ProviderID && existing.ClientID == s.ClientID &&
				existing.Status == ledger.SessionActive {
				return &ledger.ConflictError{
					Kind:       "active_session",
					ClientID:   s.ClientID,
					ExistingID: string(existing.ID),
				}
			}
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id ledger.SessionID) (*ledger.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "session", ID: string(id)}
	}
	return &s, nil
}

func (m *Memory) UpdateSession(_ context.Context, s ledger.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return &ledger.NotFoundError{Kind: "session", ID: string(s.ID)}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) SessionsByClient(_ context.Context, client ledger.ClientID, statuses ...ledger.SessionStatus) ([]ledger.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionsLocked(client, statuses), nil
}

func (m *Memory) SessionsByClients(_ context.Context, clients []ledger.ClientID, statuses ...ledger.SessionStatus) ([]ledger.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Session
	for _, c := range clients {
		result = append(result, m.sessionsLocked(c, statuses)...)
	}
	return result, nil
}

func (m *Memory) sessionsLocked(client ledger.ClientID, statuses []ledger.SessionStatus) []ledger.Session {
	var result []ledger.Session
	for _, s := range m.sessions {
		if s.ClientID != client {
			continue
		}
		if len(statuses) > 0 && !statusIn(s.Status, statuses) {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

func (m *Memory) ActiveSession(_ context.Context, provider ledger.ProviderID, client ledger.ClientID) (*ledger.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.ProviderID == provider && s.ClientID == client && s.Status == ledger.SessionActive {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func statusIn(s ledger.SessionStatus, set []ledger.SessionStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// PAYMENT REQUESTS
// =============================================================================

// CreateRequestIfNonePending performs the pending-existence check and the
// insert under one lock, mirroring the database-level partial unique index.
func (m *Memory) CreateRequestIfNonePending(_ context.Context, r ledger.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.requests {
		if existing.ClientID == r.ClientID && existing.Status == ledger.RequestPending {
			return &ledger.ConflictError{
				Kind:       "pending_request",
				ClientID:   r.ClientID,
				ExistingID: string(existing.ID),
			}
		}
	}
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) PendingRequest(_ context.Context, client ledger.ClientID) (*ledger.PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *ledger.PaymentRequest
	for _, r := range m.requests {
		if r.ClientID != client || r.Status != ledger.RequestPending {
			continue
		}
		found := r
		if latest == nil || found.CreatedAt.After(latest.CreatedAt) {
			latest = &found
		}
	}
	return latest, nil
}

func (m *Memory) UpdateRequestStatus(_ context.Context, id ledger.RequestID, status ledger.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "request", ID: string(id)}
	}
	r.Status = status
	m.requests[id] = r
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) CreatePayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payments[p.ID] = p
	return nil
}

// =============================================================================
// ACTIVITY JOURNAL - Append-only
// =============================================================================

func (m *Memory) AppendActivity(_ context.Context, a ledger.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.Seq = m.nextSeq
	m.nextSeq++
	m.activities = append(m.activities, a)
	return nil
}

func (m *Memory) Activities(_ context.Context, filter ledger.ActivityFilter) ([]ledger.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Activity
	for _, a := range m.activities {
		if filter.Matches(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Seq < result[j].Seq
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// =============================================================================
// DEV HELPERS
// =============================================================================

// Reset clears all data. Used by demo scenario loaders only.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients = make(map[ledger.ClientID]ledger.Client)
	m.sessions = make(map[ledger.SessionID]ledger.Session)
	m.requests = make(map[ledger.RequestID]ledger.PaymentRequest)
	m.payments = make(map[ledger.PaymentID]ledger.Payment)
	m.activities = nil
	m.nextSeq = 1
	return nil
}
