/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic data
  for demos. Each scenario creates clients, sessions, requests and activity
  entries that demonstrate specific features.

AVAILABLE SCENARIOS:
  fresh-start:      Clients only, nothing tracked yet
  busy-week:        Ended unpaid sessions plus one session still running
  awaiting-payment: A pending payment request with prior paid history

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Create clients with rates
 3. Insert sessions with deterministic past timestamps
 4. Optionally create a pending request / payment history
 5. Append the matching activity entries

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/session-ledger/ledger"
)

var scenarios = []ScenarioDTO{
	{ID: "fresh-start", Name: "Fresh Start", Description: "Three clients, nothing tracked yet"},
	{ID: "busy-week", Name: "Busy Week", Description: "Unpaid sessions and one running session"},
	{ID: "awaiting-payment", Name: "Awaiting Payment", Description: "Pending payment request with paid history"},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) GetCurrentScenario(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		writeError(w, http.StatusForbidden, "Scenarios are disabled", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.resetter(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-start":
		err = loadFreshStart(r.Context(), h.Store)
	case "busy-week":
		err = loadBusyWeek(r.Context(), h.Store)
	case "awaiting-payment":
		err = loadAwaitingPayment(r.Context(), h.Store)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Cache = ledger.NewSummaryCache(ledger.DefaultSummaryTTL)
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoProvider = ledger.ProviderID("provider-demo")

func seedClient(ctx context.Context, store ledger.Store, name string, rate float64) (ledger.Client, error) {
	c := ledger.Client{
		ID:         ledger.ClientID(uuid.NewString()),
		ProviderID: demoProvider,
		Name:       name,
		HourlyRate: decimal.NewFromFloat(rate),
		CreatedAt:  time.Now().Add(-30 * 24 * time.Hour),
	}
	return c, store.CreateClient(ctx, c)
}

// seedEndedSession inserts an unpaid session that ran for the given hours,
// ending hoursAgo before now, with the matching start/end activities.
func seedEndedSession(ctx context.Context, store ledger.Store, c ledger.Client, crew int, hours float64, hoursAgo float64) (ledger.Session, error) {
	end := time.Now().Add(-time.Duration(hoursAgo * float64(time.Hour)))
	start := end.Add(-time.Duration(hours * float64(time.Hour)))

	duration := decimal.NewFromFloat(hours)
	personHours := duration.Mul(decimal.NewFromInt(int64(crew)))
	amount := ledger.RoundCents(personHours.Mul(c.HourlyRate))

	s := ledger.Session{
		ID:            ledger.SessionID(uuid.NewString()),
		ClientID:      c.ID,
		ProviderID:    demoProvider,
		StartTime:     start,
		EndTime:       &end,
		HourlyRate:    c.HourlyRate,
		CrewSize:      crew,
		DurationHours: duration,
		PersonHours:   personHours,
		Amount:        amount,
		Status:        ledger.SessionUnpaid,
		CreatedAt:     start,
	}
	if err := store.CreateSessionIfNoActive(ctx, s); err != nil {
		return s, err
	}

	if err := store.AppendActivity(ctx, ledger.Activity{
		ID: ledger.ActivityID(uuid.NewString()), ClientID: c.ID, Timestamp: start,
		Data: ledger.SessionStartData{SessionID: s.ID, CrewSize: crew, HourlyRate: c.HourlyRate},
	}); err != nil {
		return s, err
	}
	return s, store.AppendActivity(ctx, ledger.Activity{
		ID: ledger.ActivityID(uuid.NewString()), ClientID: c.ID, Timestamp: end,
		Data: ledger.SessionEndData{SessionID: s.ID, DurationHours: duration, PersonHours: personHours, Amount: amount},
	})
}

func loadFreshStart(ctx context.Context, store ledger.Store) error {
	for _, c := range []struct {
		name string
		rate float64
	}{
		{"Morales Residence", 25},
		{"Hilltop Cafe", 35},
		{"Grandview Apartments", 30},
	} {
		if _, err := seedClient(ctx, store, c.name, c.rate); err != nil {
			return err
		}
	}
	return nil
}

func loadBusyWeek(ctx context.Context, store ledger.Store) error {
	morales, err := seedClient(ctx, store, "Morales Residence", 25)
	if err != nil {
		return err
	}
	cafe, err := seedClient(ctx, store, "Hilltop Cafe", 35)
	if err != nil {
		return err
	}

	if _, err := seedEndedSession(ctx, store, morales, 2, 3, 48); err != nil {
		return err
	}
	if _, err := seedEndedSession(ctx, store, morales, 2, 2.5, 24); err != nil {
		return err
	}
	if _, err := seedEndedSession(ctx, store, cafe, 1, 4, 30); err != nil {
		return err
	}

	// One session still running at the cafe.
	start := time.Now().Add(-45 * time.Minute)
	running := ledger.Session{
		ID:         ledger.SessionID(uuid.NewString()),
		ClientID:   cafe.ID,
		ProviderID: demoProvider,
		StartTime:  start,
		HourlyRate: cafe.HourlyRate,
		CrewSize:   1,
		Status:     ledger.SessionActive,
		CreatedAt:  start,
	}
	if err := store.CreateSessionIfNoActive(ctx, running); err != nil {
		return err
	}
	return store.AppendActivity(ctx, ledger.Activity{
		ID: ledger.ActivityID(uuid.NewString()), ClientID: cafe.ID, Timestamp: start,
		Data: ledger.SessionStartData{SessionID: running.ID, CrewSize: 1, HourlyRate: cafe.HourlyRate},
	})
}

func loadAwaitingPayment(ctx context.Context, store ledger.Store) error {
	grandview, err := seedClient(ctx, store, "Grandview Apartments", 30)
	if err != nil {
		return err
	}

	s1, err := seedEndedSession(ctx, store, grandview, 2, 3, 72)
	if err != nil {
		return err
	}
	s2, err := seedEndedSession(ctx, store, grandview, 2, 2, 50)
	if err != nil {
		return err
	}

	// Batch both sessions into a pending request.
	total := ledger.RoundCents(s1.Amount.Add(s2.Amount))
	hours := s1.PersonHours.Add(s2.PersonHours)
	requestedAt := time.Now().Add(-40 * time.Hour)

	request := ledger.PaymentRequest{
		ID:               ledger.RequestID(uuid.NewString()),
		ClientID:         grandview.ID,
		ProviderID:       demoProvider,
		SessionIDs:       []ledger.SessionID{s1.ID, s2.ID},
		TotalAmount:      total,
		TotalPersonHours: hours,
		Status:           ledger.RequestPending,
		CreatedAt:        requestedAt,
	}
	if err := store.CreateRequestIfNonePending(ctx, request); err != nil {
		return err
	}

	for _, s := range []ledger.Session{s1, s2} {
		s.Status = ledger.SessionRequested
		if err := store.UpdateSession(ctx, s); err != nil {
			return err
		}
	}

	return store.AppendActivity(ctx, ledger.Activity{
		ID: ledger.ActivityID(uuid.NewString()), ClientID: grandview.ID, Timestamp: requestedAt,
		Data: ledger.PaymentRequestData{BatchID: request.ID, SessionCount: 2, PersonHours: hours, Amount: total},
	})
}
