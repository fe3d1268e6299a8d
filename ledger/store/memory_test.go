package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/session-ledger/ledger"
	"github.com/warp/session-ledger/ledger/store"
)

var baseTime = time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)

func session(id ledger.SessionID, client ledger.ClientID, status ledger.SessionStatus, startOffset time.Duration) ledger.Session {
	return ledger.Session{
		ID:         id,
		ClientID:   client,
		ProviderID: "provider-1",
		StartTime:  baseTime.Add(startOffset),
		HourlyRate: decimal.NewFromInt(20),
		CrewSize:   1,
		Status:     status,
		CreatedAt:  baseTime.Add(startOffset),
	}
}

// =============================================================================
// CONDITIONAL INSERT TESTS
// =============================================================================

func TestCreateSessionIfNoActive_RejectsSecondActive(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	if err := mem.CreateSessionIfNoActive(ctx, session("s1", "c1", ledger.SessionActive, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := mem.CreateSessionIfNoActive(ctx, session("s2", "c1", ledger.SessionActive, time.Minute))
	if !ledger.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var conflict *ledger.ConflictError
	if !errors.As(err, &conflict) || conflict.ExistingID != "s1" {
		t.Errorf("conflict should name s1, got %+v", err)
	}

	// Ended sessions do not block a new active one.
	if err := mem.CreateSessionIfNoActive(ctx, session("s3", "c1", ledger.SessionUnpaid, time.Hour)); err != nil {
		t.Errorf("unpaid session should not trip the guard: %v", err)
	}
	// Other clients are unaffected.
	if err := mem.CreateSessionIfNoActive(ctx, session("s4", "c2", ledger.SessionActive, 0)); err != nil {
		t.Errorf("other client should be unaffected: %v", err)
	}
}

func TestCreateRequestIfNonePending_RejectsSecondPending(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	first := ledger.PaymentRequest{ID: "r1", ClientID: "c1", Status: ledger.RequestPending, CreatedAt: baseTime}
	if err := mem.CreateRequestIfNonePending(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := ledger.PaymentRequest{ID: "r2", ClientID: "c1", Status: ledger.RequestPending, CreatedAt: baseTime.Add(time.Minute)}
	if err := mem.CreateRequestIfNonePending(ctx, second); !ledger.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// A fulfilled request frees the slot.
	if err := mem.UpdateRequestStatus(ctx, "r1", ledger.RequestFulfilled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mem.CreateRequestIfNonePending(ctx, second); err != nil {
		t.Errorf("fulfilled request should free the slot: %v", err)
	}
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a session then fails
	// WHEN: WithTx returns the error
	// THEN: None of the writes are visible

	ctx := context.Background()
	mem := store.NewMemory()
	boom := errors.New("boom")

	err := mem.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.CreateSessionIfNoActive(ctx, session("s1", "c1", ledger.SessionActive, 0)); err != nil {
			return err
		}
		if err := tx.AppendActivity(ctx, ledger.Activity{
			ID: "a1", ClientID: "c1", Timestamp: baseTime,
			Data: ledger.SessionStartData{SessionID: "s1", CrewSize: 1},
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := mem.GetSession(ctx, "s1"); !ledger.IsNotFound(err) {
		t.Errorf("session write should be rolled back, got %v", err)
	}
	activities, err := mem.Activities(ctx, ledger.ActivityFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(activities) != 0 {
		t.Errorf("activity write should be rolled back, got %d entries", len(activities))
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	err := mem.WithTx(ctx, func(tx ledger.Store) error {
		return tx.CreateSessionIfNoActive(ctx, session("s1", "c1", ledger.SessionActive, 0))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := mem.GetSession(ctx, "s1"); err != nil {
		t.Errorf("committed session should be visible: %v", err)
	}
}

// =============================================================================
// QUERY ORDERING TESTS
// =============================================================================

func TestSessionsByClient_OrderedByStartTime(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// Insert out of order.
	for _, s := range []ledger.Session{
		session("s2", "c1", ledger.SessionUnpaid, 2*time.Hour),
		session("s1", "c1", ledger.SessionUnpaid, time.Hour),
		session("s3", "c1", ledger.SessionRequested, 3*time.Hour),
		session("x1", "c2", ledger.SessionUnpaid, 0),
	} {
		if err := mem.CreateSessionIfNoActive(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, err := mem.SessionsByClient(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s1" || all[1].ID != "s2" || all[2].ID != "s3" {
		t.Errorf("expected s1,s2,s3 in start order, got %v", all)
	}

	unpaid, err := mem.SessionsByClient(ctx, "c1", ledger.SessionUnpaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unpaid) != 2 {
		t.Errorf("expected 2 unpaid sessions, got %d", len(unpaid))
	}
}

func TestActivities_StableOrderOnEqualTimestamps(t *testing.T) {
	// Two activities at the same instant keep insertion order via Seq.
	ctx := context.Background()
	mem := store.NewMemory()

	for _, id := range []ledger.ActivityID{"a1", "a2", "a3"} {
		err := mem.AppendActivity(ctx, ledger.Activity{
			ID: id, ClientID: "c1", Timestamp: baseTime,
			Data: ledger.SessionStartData{SessionID: "s1", CrewSize: 1},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	activities, err := mem.Activities(ctx, ledger.ActivityFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(activities) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(activities))
	}
	for i, want := range []ledger.ActivityID{"a1", "a2", "a3"} {
		if activities[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, activities[i].ID)
		}
	}
}

func TestActivities_FilterAndLimit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	ids := []ledger.ActivityID{"a1", "a2", "a3"}
	for i, data := range []ledger.ActivityData{
		ledger.SessionStartData{SessionID: "s1", CrewSize: 1},
		ledger.SessionEndData{SessionID: "s1"},
		ledger.PaymentRequestData{BatchID: "r1", SessionCount: 1},
	} {
		err := mem.AppendActivity(ctx, ledger.Activity{
			ID:       ids[i],
			ClientID: "c1", Timestamp: baseTime.Add(time.Duration(i) * time.Minute),
			Data: data,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ends, err := mem.Activities(ctx, ledger.ActivityFilter{
		Types: []ledger.ActivityType{ledger.ActivitySessionEnd},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ends) != 1 || ends[0].Type() != ledger.ActivitySessionEnd {
		t.Errorf("expected one session_end, got %v", ends)
	}

	limited, err := mem.Activities(ctx, ledger.ActivityFilter{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit 2 applied, got %d", len(limited))
	}
}

// =============================================================================
// PENDING REQUEST LOOKUP
// =============================================================================

func TestPendingRequest_LatestWins(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	old := ledger.PaymentRequest{ID: "r1", ClientID: "c1", Status: ledger.RequestPending, CreatedAt: baseTime}
	if err := mem.CreateRequestIfNonePending(ctx, old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mem.UpdateRequestStatus(ctx, "r1", ledger.RequestFulfilled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newer := ledger.PaymentRequest{ID: "r2", ClientID: "c1", Status: ledger.RequestPending, CreatedAt: baseTime.Add(time.Hour)}
	if err := mem.CreateRequestIfNonePending(ctx, newer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := mem.PendingRequest(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending == nil || pending.ID != "r2" {
		t.Errorf("expected r2 pending, got %+v", pending)
	}
}
