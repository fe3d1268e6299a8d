package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/session-ledger/ledger"
	"github.com/warp/session-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedClient(t *testing.T, store *sqlite.Store, id ledger.ClientID) ledger.Client {
	t.Helper()
	c := ledger.Client{
		ID:         id,
		ProviderID: "provider-1",
		Name:       "Test Client",
		HourlyRate: decimal.NewFromInt(20),
		CreatedAt:  time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateClient(context.Background(), c))
	return c
}

func activeSession(client ledger.ClientID, id ledger.SessionID, start time.Time) ledger.Session {
	return ledger.Session{
		ID:         id,
		ClientID:   client,
		ProviderID: "provider-1",
		StartTime:  start,
		HourlyRate: decimal.NewFromInt(20),
		CrewSize:   2,
		Status:     ledger.SessionActive,
		CreatedAt:  start,
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created := seedClient(t, store, "c1")

	got, err := store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	assert.True(t, got.HourlyRate.Equal(created.HourlyRate), "rate should survive the round trip")
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))

	_, err = store.GetClient(ctx, "missing")
	assert.True(t, ledger.IsNotFound(err))

	require.NoError(t, store.UpdateClientRate(ctx, "c1", decimal.RequireFromString("25.50")))
	got, err = store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.HourlyRate.Equal(decimal.RequireFromString("25.50")))

	clients, err := store.ListClients(ctx, "provider-1")
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSessionRoundTrip_SubSecondPrecision(t *testing.T) {
	// Durations are recomputed from reloaded start times, so nanoseconds must
	// survive persistence.
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")

	start := time.Date(2026, time.March, 9, 8, 30, 15, 123456789, time.UTC)
	require.NoError(t, store.CreateSessionIfNoActive(ctx, activeSession("c1", "s1", start)))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(start), "expected %v, got %v", start, got.StartTime)
	assert.Nil(t, got.EndTime)
	assert.Equal(t, ledger.SessionActive, got.Status)
}

func TestCreateSessionIfNoActive_ConstraintConflict(t *testing.T) {
	// The partial unique index is the real guard; no pre-check here.
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")

	start := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSessionIfNoActive(ctx, activeSession("c1", "s1", start)))

	err := store.CreateSessionIfNoActive(ctx, activeSession("c1", "s2", start.Add(time.Minute)))
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)

	// Ending the session frees the slot.
	ended := activeSession("c1", "s1", start)
	end := start.Add(time.Hour)
	ended.EndTime = &end
	ended.Status = ledger.SessionUnpaid
	ended.DurationHours = decimal.NewFromInt(1)
	ended.PersonHours = decimal.NewFromInt(2)
	ended.Amount = decimal.NewFromInt(40)
	require.NoError(t, store.UpdateSession(ctx, ended))

	assert.NoError(t, store.CreateSessionIfNoActive(ctx, activeSession("c1", "s2", end)))
}

func TestSessionsByClients_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")
	seedClient(t, store, "c2")

	base := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	mkUnpaid := func(client ledger.ClientID, id ledger.SessionID, offset time.Duration) ledger.Session {
		s := activeSession(client, id, base.Add(offset))
		s.Status = ledger.SessionUnpaid
		s.Amount = decimal.NewFromInt(40)
		return s
	}

	require.NoError(t, store.CreateSessionIfNoActive(ctx, mkUnpaid("c1", "s2", 2*time.Hour)))
	require.NoError(t, store.CreateSessionIfNoActive(ctx, mkUnpaid("c1", "s1", time.Hour)))
	require.NoError(t, store.CreateSessionIfNoActive(ctx, mkUnpaid("c2", "s3", 0)))
	require.NoError(t, store.CreateSessionIfNoActive(ctx, activeSession("c1", "s4", base.Add(3*time.Hour))))

	unpaid, err := store.SessionsByClient(ctx, "c1", ledger.SessionUnpaid)
	require.NoError(t, err)
	require.Len(t, unpaid, 2)
	assert.Equal(t, ledger.SessionID("s1"), unpaid[0].ID, "ordered by start time")
	assert.Equal(t, ledger.SessionID("s2"), unpaid[1].ID)

	both, err := store.SessionsByClients(ctx, []ledger.ClientID{"c1", "c2"})
	require.NoError(t, err)
	assert.Len(t, both, 4)

	none, err := store.SessionsByClients(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestActiveSession_Lookup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")

	got, err := store.ActiveSession(ctx, "provider-1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got, "no active session yet")

	start := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSessionIfNoActive(ctx, activeSession("c1", "s1", start)))

	got, err = store.ActiveSession(ctx, "provider-1", "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ledger.SessionID("s1"), got.ID)

	// Provider scoping.
	got, err = store.ActiveSession(ctx, "provider-2", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// PAYMENT REQUEST TESTS
// =============================================================================

func TestCreateRequestIfNonePending_ConstraintConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")
	created := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	first := ledger.PaymentRequest{
		ID: "r1", ClientID: "c1", ProviderID: "provider-1",
		SessionIDs:       []ledger.SessionID{"s1", "s2"},
		TotalAmount:      decimal.RequireFromString("75.00"),
		TotalPersonHours: decimal.RequireFromString("2.5"),
		Status:           ledger.RequestPending,
		CreatedAt:        created,
	}
	require.NoError(t, store.CreateRequestIfNonePending(ctx, first))

	second := first
	second.ID = "r2"
	err := store.CreateRequestIfNonePending(ctx, second)
	assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)

	// Round trip, including the JSON-encoded session id list.
	pending, err := store.PendingRequest(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, ledger.RequestID("r1"), pending.ID)
	assert.Equal(t, []ledger.SessionID{"s1", "s2"}, pending.SessionIDs)
	assert.True(t, pending.TotalAmount.Equal(decimal.RequireFromString("75.00")))

	// Fulfilling frees the slot.
	require.NoError(t, store.UpdateRequestStatus(ctx, "r1", ledger.RequestFulfilled))
	pending, err = store.PendingRequest(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, pending)
	assert.NoError(t, store.CreateRequestIfNonePending(ctx, second))
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")
	boom := errors.New("boom")

	start := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	err := store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.CreateSessionIfNoActive(ctx, activeSession("c1", "s1", start)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetSession(ctx, "s1")
	assert.True(t, ledger.IsNotFound(err), "rolled-back session should be gone, got %v", err)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")

	start := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	err := store.WithTx(ctx, func(tx ledger.Store) error {
		return tx.CreateSessionIfNoActive(ctx, activeSession("c1", "s1", start))
	})
	require.NoError(t, err)

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, ledger.SessionID("s1"), got.ID)
}

// =============================================================================
// ACTIVITY JOURNAL TESTS
// =============================================================================

func TestActivities_RoundTripAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	at := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	rate := decimal.NewFromInt(20)

	// Two entries at the same instant: seq must keep insertion order.
	require.NoError(t, store.AppendActivity(ctx, ledger.Activity{
		ID: "a1", ClientID: "c1", Timestamp: at,
		Data: ledger.SessionStartData{SessionID: "s1", CrewSize: 2, HourlyRate: rate},
	}))
	require.NoError(t, store.AppendActivity(ctx, ledger.Activity{
		ID: "a2", ClientID: "c1", Timestamp: at,
		Data: ledger.SessionEndData{SessionID: "s1", DurationHours: decimal.NewFromInt(1),
			PersonHours: decimal.NewFromInt(2), Amount: decimal.NewFromInt(40)},
	}))
	require.NoError(t, store.AppendActivity(ctx, ledger.Activity{
		ID: "a3", ClientID: "c2", Timestamp: at.Add(time.Minute),
		Data: ledger.PaymentRequestData{BatchID: "r1", SessionCount: 1,
			PersonHours: decimal.NewFromInt(2), Amount: decimal.NewFromInt(40)},
	}))

	all, err := store.Activities(ctx, ledger.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ledger.ActivityID("a1"), all[0].ID)
	assert.Equal(t, ledger.ActivityID("a2"), all[1].ID)

	// Payload variants come back typed.
	startData, ok := all[0].Data.(ledger.SessionStartData)
	require.True(t, ok, "expected SessionStartData, got %T", all[0].Data)
	assert.Equal(t, 2, startData.CrewSize)
	assert.True(t, startData.HourlyRate.Equal(rate))

	endData, ok := all[1].Data.(ledger.SessionEndData)
	require.True(t, ok)
	assert.True(t, endData.Amount.Equal(decimal.NewFromInt(40)))

	// Client filter.
	clientID := ledger.ClientID("c1")
	filtered, err := store.Activities(ctx, ledger.ActivityFilter{ClientID: &clientID})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	// Type filter plus limit.
	limited, err := store.Activities(ctx, ledger.ActivityFilter{
		Types: []ledger.ActivityType{ledger.ActivitySessionStart, ledger.ActivitySessionEnd},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ledger.ActivityID("a1"), limited[0].ID)
}

// =============================================================================
// RESET TESTS
// =============================================================================

func TestReset_ClearsAllData(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedClient(t, store, "c1")

	start := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSessionIfNoActive(ctx, activeSession("c1", "s1", start)))
	require.NoError(t, store.AppendActivity(ctx, ledger.Activity{
		ID: "a1", ClientID: "c1", Timestamp: start,
		Data: ledger.SessionStartData{SessionID: "s1", CrewSize: 2},
	}))

	require.NoError(t, store.Reset(ctx))

	clients, err := store.ListClients(ctx, "provider-1")
	require.NoError(t, err)
	assert.Empty(t, clients)
	_, err = store.GetSession(ctx, "s1")
	assert.True(t, ledger.IsNotFound(err))
	activities, err := store.Activities(ctx, ledger.ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, activities)
}
