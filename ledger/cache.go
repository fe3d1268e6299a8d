/*
cache.go - Caller-owned summary cache

PURPOSE:
  The aggregator itself is stateless; UI staleness control lives with the
  caller. SummaryCache gives the API layer a short TTL window (default 30s)
  over per-client summaries so list screens don't hammer the store, while
  every mutation invalidates the affected client immediately.

  This replaces ad hoc per-screen caches: one cache, one formula, no drift.
*/
package ledger

import (
	"sync"
	"time"
)

// DefaultSummaryTTL is the staleness window used when none is given.
const DefaultSummaryTTL = 30 * time.Second

type summaryEntry struct {
	summary Summary
	at      time.Time
}

// SummaryCache is a TTL cache over per-client summaries. Safe for concurrent
// use. Zero value is not usable; construct with NewSummaryCache.
type SummaryCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[ClientID]summaryEntry

	// now is overridable for tests.
	now func() time.Time
}

func NewSummaryCache(ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &SummaryCache{
		ttl:     ttl,
		entries: make(map[ClientID]summaryEntry),
		now:     time.Now,
	}
}

// Get returns the cached summary if it is younger than the TTL.
func (c *SummaryCache) Get(id ClientID) (Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok || c.now().Sub(e.at) > c.ttl {
		return Summary{}, false
	}
	return e.summary, true
}

// Put stores a freshly computed summary.
func (c *SummaryCache) Put(s Summary) {
	c.mu.Lock()
	c.entries[s.ClientID] = summaryEntry{summary: s, at: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the client's entry. Called after every mutation touching
// the client's ledger.
func (c *SummaryCache) Invalidate(id ClientID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
