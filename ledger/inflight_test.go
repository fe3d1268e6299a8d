package ledger

import (
	"errors"
	"testing"
)

func TestInflightLatch_SecondAcquireConflicts(t *testing.T) {
	// GIVEN: A mutation in flight for a client
	// WHEN: A second mutation tries to start
	// THEN: It fails immediately with an in_flight conflict

	latch := newInflightLatch()

	release, err := latch.acquire("client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = latch.acquire("client-1")
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Kind != "in_flight" {
		t.Errorf("expected in_flight conflict, got %+v", err)
	}

	release()
	if _, err := latch.acquire("client-1"); err != nil {
		t.Errorf("acquire after release should succeed, got %v", err)
	}
}

func TestInflightLatch_ClientsIndependent(t *testing.T) {
	latch := newInflightLatch()

	if _, err := latch.acquire("client-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := latch.acquire("client-2"); err != nil {
		t.Errorf("latch must be per-client, got %v", err)
	}
}
