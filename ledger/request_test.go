package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/warp/session-ledger/ledger"
)

// =============================================================================
// PAYMENT REQUEST TESTS
// =============================================================================

func TestRequestPayment_BatchesNamedSessions(t *testing.T) {
	// GIVEN: Two unpaid sessions ($30 and $45)
	// WHEN: Requesting payment for both
	// THEN: One pending request totalling $75.00; both sessions move to requested

	ctx := context.Background()
	svc, _, clock := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	s1 := startAndEnd(t, svc, clock, client.ID, 1, 1)
	s2 := startAndEnd(t, svc, clock, client.ID, 1, 1.5)

	request, err := svc.RequestPayment(ctx, client.ID, []ledger.SessionID{s1.ID, s2.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if request.Status != ledger.RequestPending {
		t.Errorf("expected pending status, got %q", request.Status)
	}
	if !request.TotalAmount.Equal(money("75")) {
		t.Errorf("expected total 75.00, got %v", request.TotalAmount)
	}
	if !request.TotalPersonHours.Equal(money("2.5")) {
		t.Errorf("expected 2.5 person-hours, got %v", request.TotalPersonHours)
	}
	if len(request.SessionIDs) != 2 || !request.Covers(s1.ID) || !request.Covers(s2.ID) {
		t.Errorf("request should cover both sessions, got %v", request.SessionIDs)
	}

	summary, err := svc.GetClientSummary(ctx, client.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.RequestedSessions != 2 || summary.UnpaidSessions != 0 {
		t.Errorf("expected both sessions requested, got %+v", summary)
	}
}

func TestRequestPayment_EmptyIDs_BatchesAllUnpaid(t *testing.T) {
	// An empty session list means "request everything outstanding".
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	startAndEnd(t, svc, clock, client.ID, 1, 1)
	startAndEnd(t, svc, clock, client.ID, 1, 1.5)

	request, err := svc.RequestPayment(ctx, client.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(request.SessionIDs) != 2 {
		t.Errorf("expected all unpaid sessions batched, got %d", len(request.SessionIDs))
	}
	if !request.TotalAmount.Equal(money("75")) {
		t.Errorf("expected total 75.00, got %v", request.TotalAmount)
	}
}

func TestRequestPayment_NothingUnpaid_NoEligible(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	_, err := svc.RequestPayment(ctx, client.ID, nil)
	if !ledger.IsNoEligible(err) {
		t.Errorf("expected no-eligible-sessions error, got %v", err)
	}
}

func TestRequestPayment_SecondPending_Conflict(t *testing.T) {
	// GIVEN: A pending request already exists
	// WHEN: Requesting again (the double-tap case)
	// THEN: Exactly one pending request survives; second call names the first

	ctx := context.Background()
	svc, _, clock := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	startAndEnd(t, svc, clock, client.ID, 1, 1)
	first, err := svc.RequestPayment(ctx, client.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	startAndEnd(t, svc, clock, client.ID, 1, 1)
	_, err = svc.RequestPayment(ctx, client.ID, nil)
	if !ledger.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	var conflict *ledger.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflict.ExistingID != string(first.ID) {
		t.Errorf("conflict should name request %s, got %s", first.ID, conflict.ExistingID)
	}

	pending, err := svc.GetPendingPaymentRequest(ctx, client.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending == nil || pending.ID != first.ID {
		t.Errorf("expected first request still pending, got %+v", pending)
	}
}

func TestRequestPayment_WrongClient_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	a := createClient(t, svc, "Client A", "30")
	b := createClient(t, svc, "Client B", "30")

	session := startAndEnd(t, svc, clock, a.ID, 1, 1)

	_, err := svc.RequestPayment(ctx, b.ID, []ledger.SessionID{session.ID})
	if !ledger.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRequestPayment_ActiveSession_InvalidState(t *testing.T) {
	// A running session has no committed amount and cannot be requested.
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	active, err := svc.StartSession(ctx, client.ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.RequestPayment(ctx, client.ID, []ledger.SessionID{active.ID})
	if !ledger.IsInvalidState(err) {
		t.Errorf("expected invalid-state error, got %v", err)
	}

	// The failed request must not leave a pending row behind.
	pending, err := svc.GetPendingPaymentRequest(ctx, client.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending != nil {
		t.Errorf("failed request left a pending row: %+v", pending)
	}
}

func TestRequestPayment_UnknownSession_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")
	startAndEnd(t, svc, clock, client.ID, 1, 1)

	_, err := svc.RequestPayment(ctx, client.ID, []ledger.SessionID{"missing"})
	if !ledger.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestRequestPayment_DuplicateIDs_CountedOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	session := startAndEnd(t, svc, clock, client.ID, 1, 1)

	request, err := svc.RequestPayment(ctx, client.ID, []ledger.SessionID{session.ID, session.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(request.SessionIDs) != 1 {
		t.Errorf("expected duplicate ids deduplicated, got %v", request.SessionIDs)
	}
	if !request.TotalAmount.Equal(money("30")) {
		t.Errorf("expected total 30.00, got %v", request.TotalAmount)
	}
}

func TestRequestPayment_AppendsActivity(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	client := createClient(t, svc, "Hilltop Cafe", "30")

	startAndEnd(t, svc, clock, client.ID, 1, 1)
	request, err := svc.RequestPayment(ctx, client.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	activities, err := svc.GetActivities(ctx, ledger.ActivityFilter{
		ClientID: &client.ID,
		Types:    []ledger.ActivityType{ledger.ActivityPaymentRequest},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("expected 1 payment_request activity, got %d", len(activities))
	}
	data, ok := activities[0].Data.(ledger.PaymentRequestData)
	if !ok {
		t.Fatalf("expected PaymentRequestData, got %T", activities[0].Data)
	}
	if data.BatchID != request.ID || data.SessionCount != 1 || !data.Amount.Equal(money("30")) {
		t.Errorf("unexpected payload: %+v", data)
	}
}
