/*
inflight.go - Per-client mutation latch

PURPOSE:
  Guards against debounced re-entrant calls: rapid repeated taps in the UI
  fire the same mutation twice before the first response lands. The store's
  conditional inserts are the backstop; this latch avoids sending the
  duplicate write at all.

  While a mutation for a client is running in this process, further
  mutations for that client fail immediately with ConflictError("in_flight").
  Reads are never latched.
*/
package ledger

import "sync"

type inflightLatch struct {
	mu   sync.Mutex
	busy map[ClientID]bool
}

func newInflightLatch() *inflightLatch {
	return &inflightLatch{busy: make(map[ClientID]bool)}
}

// acquire marks the client busy and returns a release func, or a
// ConflictError if a mutation is already in flight.
func (l *inflightLatch) acquire(id ClientID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.busy[id] {
		return nil, &ConflictError{Kind: "in_flight", ClientID: id}
	}
	l.busy[id] = true

	return func() {
		l.mu.Lock()
		delete(l.busy, id)
		l.mu.Unlock()
	}, nil
}
