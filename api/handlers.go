/*
handlers.go - HTTP API handlers for the session-payment ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger service.

ENDPOINTS:
  Clients:
    GET    /api/clients                      List clients
    POST   /api/clients                      Create client
    GET    /api/clients/{id}                 Get client
    PUT    /api/clients/{id}/rate            Update hourly rate

  Sessions:
    POST   /api/clients/{id}/sessions        Start session
    GET    /api/clients/{id}/sessions/active Active session lookup
    POST   /api/sessions/{id}/end            End session
    PUT    /api/sessions/{id}/crew           Update crew size

  Money:
    GET    /api/clients/{id}/summary         Client summary (cached, 30s TTL)
    GET    /api/clients/summaries?ids=a,b    Batched summaries
    GET    /api/clients/{id}/money-state     Summary + pending request, cents

  Payments:
    POST   /api/clients/{id}/payment-requests          Request payment
    GET    /api/clients/{id}/payment-requests/pending  Pending request lookup
    POST   /api/clients/{id}/payments                  Mark paid

  Activities:
    GET    /api/activities                   Timeline (filterable)

ERROR HANDLING:
  Ledger errors map to HTTP statuses:
  - 400: ValidationError (re-prompt the user)
  - 404: NotFoundError
  - 409: ConflictError (refresh and show existing state)
  - 422: InvalidStateError, NoEligibleSessions (refresh and re-decide)
  - 500: store/transport failures (unknown outcome; re-fetch before retry)

  Summary reads degrade to a zero-valued summary with a logged warning
  instead of failing the screen; a stale balance beats a crash.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
  - scenarios.go: demo data loaders
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/session-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Svc   *ledger.Service
	Cache *ledger.SummaryCache

	// Store is retained for scenario seeding only; normal traffic goes
	// through the service.
	Store    ledger.TxStore
	resetter func() error

	currentScenario string
}

// NewHandler creates a handler around the service. resetter clears all data
// for scenario loads; pass nil to disable scenarios.
func NewHandler(svc *ledger.Service, store ledger.TxStore, resetter func() error) *Handler {
	return &Handler{
		Svc:      svc,
		Cache:    ledger.NewSummaryCache(ledger.DefaultSummaryTTL),
		Store:    store,
		resetter: resetter,
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Svc.ListClients(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i := range clients {
		dtos[i] = toClientDTO(&clients[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
		return
	}

	client, err := h.Svc.CreateClient(r.Context(), req.Name, rate)
	if err != nil {
		writeLedgerError(w, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.Svc.GetClient(r.Context(), ledger.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

func (h *Handler) UpdateClientRate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
		return
	}

	client, err := h.Svc.UpdateClientRate(r.Context(), ledger.ClientID(chi.URLParam(r, "id")), rate)
	if err != nil {
		writeLedgerError(w, "Failed to update rate", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	clientID := ledger.ClientID(chi.URLParam(r, "id"))

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CrewSize == 0 {
		req.CrewSize = 1
	}

	session, err := h.Svc.StartSession(r.Context(), clientID, req.CrewSize)
	if err != nil {
		writeLedgerError(w, "Failed to start session", err)
		return
	}
	h.Cache.Invalidate(clientID)
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := ledger.SessionID(chi.URLParam(r, "id"))

	var req EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var override *decimal.Decimal
	if req.PersonHours != nil {
		d, err := decimal.NewFromString(*req.PersonHours)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid person_hours", err)
			return
		}
		override = &d
	}

	session, err := h.Svc.EndSession(r.Context(), sessionID, override)
	if err != nil {
		writeLedgerError(w, "Failed to end session", err)
		return
	}
	h.Cache.Invalidate(session.ClientID)
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *Handler) UpdateCrewSize(w http.ResponseWriter, r *http.Request) {
	sessionID := ledger.SessionID(chi.URLParam(r, "id"))

	var req UpdateCrewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	session, err := h.Svc.UpdateCrewSize(r.Context(), sessionID, req.CrewSize)
	if err != nil {
		writeLedgerError(w, "Failed to update crew size", err)
		return
	}
	h.Cache.Invalidate(session.ClientID)
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *Handler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Svc.GetActiveSession(r.Context(), ledger.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, "Failed to look up active session", err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "session": toSessionDTO(session)})
}

// =============================================================================
// MONEY STATE HANDLERS
// =============================================================================

// GetClientSummary serves from the TTL cache when fresh; degrades to a zero
// summary on a failed fetch (logged) so a list screen never hard-fails.
func (h *Handler) GetClientSummary(w http.ResponseWriter, r *http.Request) {
	clientID := ledger.ClientID(chi.URLParam(r, "id"))

	if cached, ok := h.Cache.Get(clientID); ok {
		writeJSON(w, http.StatusOK, toSummaryDTO(cached))
		return
	}

	summary, err := h.Svc.GetClientSummary(r.Context(), clientID)
	if err != nil {
		log.Printf("WARN: summary fetch failed for client %s, serving zero summary: %v", clientID, err)
		writeJSON(w, http.StatusOK, toSummaryDTO(ledger.ZeroSummary(clientID)))
		return
	}

	h.Cache.Put(*summary)
	writeJSON(w, http.StatusOK, toSummaryDTO(*summary))
}

func (h *Handler) GetClientSummaries(w http.ResponseWriter, r *http.Request) {
	idsParam := strings.TrimSpace(r.URL.Query().Get("ids"))
	if idsParam == "" {
		writeError(w, http.StatusBadRequest, "Missing ids parameter", nil)
		return
	}

	var ids []ledger.ClientID
	for _, raw := range strings.Split(idsParam, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			ids = append(ids, ledger.ClientID(raw))
		}
	}

	summaries, err := h.Svc.GetClientSummariesForClients(r.Context(), ids)
	if err != nil {
		log.Printf("WARN: batched summary fetch failed, serving zero summaries: %v", err)
		summaries = make([]ledger.Summary, len(ids))
		for i, id := range ids {
			summaries[i] = ledger.ZeroSummary(id)
		}
	}

	dtos := make([]SummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetClientMoneyState(w http.ResponseWriter, r *http.Request) {
	clientID := ledger.ClientID(chi.URLParam(r, "id"))

	state, err := h.Svc.GetClientMoneyState(r.Context(), clientID)
	if err != nil {
		writeLedgerError(w, "Failed to compute money state", err)
		return
	}
	writeJSON(w, http.StatusOK, toMoneyStateDTO(state))
}

// =============================================================================
// PAYMENT REQUEST & SETTLEMENT HANDLERS
// =============================================================================

func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	clientID := ledger.ClientID(chi.URLParam(r, "id"))

	var req RequestPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	batch, err := h.Svc.RequestPayment(r.Context(), clientID, toSessionIDs(req.SessionIDs))
	if err != nil {
		writeLedgerError(w, "Failed to request payment", err)
		return
	}
	h.Cache.Invalidate(clientID)
	writeJSON(w, http.StatusCreated, toRequestDTO(batch))
}

func (h *Handler) GetPendingRequest(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Svc.GetPendingPaymentRequest(r.Context(), ledger.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeLedgerError(w, "Failed to look up pending request", err)
		return
	}
	if pending == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": true, "request": toRequestDTO(pending)})
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	clientID := ledger.ClientID(chi.URLParam(r, "id"))

	var req MarkPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	payment, err := h.Svc.MarkPaid(r.Context(), clientID, toSessionIDs(req.SessionIDs),
		amount, ledger.PaymentMethod(req.Method))
	if err != nil {
		writeLedgerError(w, "Failed to record payment", err)
		return
	}
	h.Cache.Invalidate(clientID)
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// =============================================================================
// ACTIVITY HANDLERS
// =============================================================================

func (h *Handler) GetActivities(w http.ResponseWriter, r *http.Request) {
	var filter ledger.ActivityFilter

	if v := r.URL.Query().Get("client_id"); v != "" {
		id := ledger.ClientID(v)
		filter.ClientID = &id
	}
	if v := r.URL.Query().Get("type"); v != "" {
		for _, t := range strings.Split(v, ",") {
			filter.Types = append(filter.Types, ledger.ActivityType(t))
		}
	}

	activities, err := h.Svc.GetActivities(r.Context(), filter)
	if err != nil {
		writeLedgerError(w, "Failed to query activities", err)
		return
	}

	dtos := make([]ActivityDTO, 0, len(activities))
	for _, a := range activities {
		dto, err := toActivityDTO(a)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode activity", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger error kinds to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusForError(err), message, err)
}

func statusForError(err error) int {
	switch {
	case ledger.IsValidation(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsInvalidState(err), ledger.IsNoEligible(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
