/*
service.go - Ledger service facade

PURPOSE:
  One service object wiring the lifecycle manager, aggregator, request
  coordinator and settlement handler to a store handle. Constructed
  explicitly and passed by reference - no ambient singletons, no global
  mutable state.

LATCHING:
  Every mutation acquires the per-client in-flight latch before touching the
  store, so rapid duplicate taps fail fast with ConflictError("in_flight")
  instead of racing to the conditional inserts. Reads bypass the latch.

CLIENT REGISTRY:
  Clients carry the current hourly rate that StartSession snapshots. The
  registry surface is intentionally small: create, get, list, update rate.

SEE ALSO:
  - session.go, summary.go, request.go, settlement.go: the components
  - api/handlers.go: the HTTP consumer
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the inbound surface of the ledger for a single provider.
type Service struct {
	store    TxStore
	provider ProviderID

	sessions    *SessionService
	aggregator  *Aggregator
	coordinator *RequestCoordinator
	settlements *SettlementHandler
	latch       *inflightLatch

	// Now is propagated to all components; overridable for tests.
	Now func() time.Time
}

// NewService builds a service bound to the given store and provider identity.
// The provider is resolved by the caller (authentication is an external
// collaborator); the ledger only sees the identifier.
func NewService(store TxStore, provider ProviderID) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		latch:    newInflightLatch(),
	}
	s.sessions = &SessionService{Store: store, Provider: provider, Now: s.now}
	s.aggregator = &Aggregator{Store: store}
	s.coordinator = &RequestCoordinator{Store: store, Provider: provider, Now: s.now}
	s.settlements = &SettlementHandler{Store: store, Now: s.now}
	return s
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func (s *Service) StartSession(ctx context.Context, clientID ClientID, crewSize int) (*Session, error) {
	release, err := s.latch.acquire(clientID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.sessions.StartSession(ctx, clientID, crewSize)
}

func (s *Service) EndSession(ctx context.Context, sessionID SessionID, personHoursOverride *decimal.Decimal) (*Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	release, err := s.latch.acquire(session.ClientID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.sessions.EndSession(ctx, sessionID, personHoursOverride)
}

func (s *Service) UpdateCrewSize(ctx context.Context, sessionID SessionID, crewSize int) (*Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	release, err := s.latch.acquire(session.ClientID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.sessions.UpdateCrewSize(ctx, sessionID, crewSize)
}

func (s *Service) GetActiveSession(ctx context.Context, clientID ClientID) (*Session, error) {
	return s.sessions.GetActiveSession(ctx, clientID)
}

// =============================================================================
// MONEY STATE
// =============================================================================

func (s *Service) GetClientSummary(ctx context.Context, clientID ClientID) (*Summary, error) {
	return s.aggregator.Summary(ctx, clientID)
}

func (s *Service) GetClientSummariesForClients(ctx context.Context, ids []ClientID) ([]Summary, error) {
	return s.aggregator.SummariesForClients(ctx, ids)
}

func (s *Service) GetClientMoneyState(ctx context.Context, clientID ClientID) (*MoneyState, error) {
	return s.aggregator.MoneyState(ctx, clientID)
}

// =============================================================================
// PAYMENT REQUESTS & SETTLEMENT
// =============================================================================

func (s *Service) RequestPayment(ctx context.Context, clientID ClientID, sessionIDs []SessionID) (*PaymentRequest, error) {
	release, err := s.latch.acquire(clientID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.coordinator.RequestPayment(ctx, clientID, sessionIDs)
}

func (s *Service) GetPendingPaymentRequest(ctx context.Context, clientID ClientID) (*PaymentRequest, error) {
	return s.coordinator.GetPendingRequest(ctx, clientID)
}

func (s *Service) MarkPaid(ctx context.Context, clientID ClientID, sessionIDs []SessionID, amount decimal.Decimal, method PaymentMethod) (*Payment, error) {
	release, err := s.latch.acquire(clientID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.settlements.MarkPaid(ctx, clientID, sessionIDs, amount, method)
}

// =============================================================================
// ACTIVITY TIMELINE
// =============================================================================

func (s *Service) GetActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	return s.store.Activities(ctx, filter)
}

// =============================================================================
// CLIENT REGISTRY
// =============================================================================

func (s *Service) CreateClient(ctx context.Context, name string, hourlyRate decimal.Decimal) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !hourlyRate.IsPositive() {
		return nil, &ValidationError{Field: "hourlyRate", Message: "must be positive"}
	}

	client := Client{
		ID:         ClientID(uuid.NewString()),
		ProviderID: s.provider,
		Name:       name,
		HourlyRate: RoundCents(hourlyRate),
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Service) GetClient(ctx context.Context, id ClientID) (*Client, error) {
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.store.ListClients(ctx, s.provider)
}

// UpdateClientRate changes the client's rate for FUTURE sessions only;
// existing sessions keep their snapshot.
func (s *Service) UpdateClientRate(ctx context.Context, id ClientID, rate decimal.Decimal) (*Client, error) {
	if !rate.IsPositive() {
		return nil, &ValidationError{Field: "hourlyRate", Message: "must be positive"}
	}
	if err := s.store.UpdateClientRate(ctx, id, RoundCents(rate)); err != nil {
		return nil, err
	}
	return s.store.GetClient(ctx, id)
}
