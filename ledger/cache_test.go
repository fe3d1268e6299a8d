package ledger

import (
	"testing"
	"time"
)

func TestSummaryCache_HitWithinTTL(t *testing.T) {
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	c := NewSummaryCache(30 * time.Second)
	c.now = func() time.Time { return now }

	c.Put(Summary{ClientID: "client-1", UnpaidSessions: 2})

	now = now.Add(29 * time.Second)
	got, ok := c.Get("client-1")
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if got.UnpaidSessions != 2 {
		t.Errorf("unexpected cached summary: %+v", got)
	}
}

func TestSummaryCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	c := NewSummaryCache(30 * time.Second)
	c.now = func() time.Time { return now }

	c.Put(Summary{ClientID: "client-1"})

	now = now.Add(31 * time.Second)
	if _, ok := c.Get("client-1"); ok {
		t.Error("expected cache miss after TTL")
	}
}

func TestSummaryCache_InvalidateDropsEntry(t *testing.T) {
	c := NewSummaryCache(30 * time.Second)
	c.Put(Summary{ClientID: "client-1"})

	c.Invalidate("client-1")
	if _, ok := c.Get("client-1"); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestSummaryCache_MissForUnknownClient(t *testing.T) {
	c := NewSummaryCache(0) // falls back to the default TTL
	if _, ok := c.Get("client-1"); ok {
		t.Error("expected miss for never-cached client")
	}
}
