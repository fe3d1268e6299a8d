/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY FORMAT:
  Currency fields are strings with exactly two decimals ("60.00") - the cent
  rounding boundary of the ledger. Hour quantities keep full precision and
  are also strings, so no client ever parses money through a float.

SEE ALSO:
  - handlers.go: uses these types
  - ledger/summary.go: the domain types being projected
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/session-ledger/ledger"
)

// =============================================================================
// ERROR RESPONSE
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CLIENTS
// =============================================================================

type ClientDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HourlyRate string `json:"hourly_rate"`
	CreatedAt  string `json:"created_at"`
}

type CreateClientRequest struct {
	Name       string `json:"name"`
	HourlyRate string `json:"hourly_rate"`
}

type UpdateRateRequest struct {
	HourlyRate string `json:"hourly_rate"`
}

func toClientDTO(c *ledger.Client) ClientDTO {
	return ClientDTO{
		ID:         string(c.ID),
		Name:       c.Name,
		HourlyRate: c.HourlyRate.StringFixed(2),
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

type SessionDTO struct {
	ID            string  `json:"id"`
	ClientID      string  `json:"client_id"`
	StartTime     string  `json:"start_time"`
	EndTime       *string `json:"end_time,omitempty"`
	HourlyRate    string  `json:"hourly_rate"`
	CrewSize      int     `json:"crew_size"`
	DurationHours string  `json:"duration_hours"`
	PersonHours   string  `json:"person_hours"`
	Amount        string  `json:"amount"`
	Status        string  `json:"status"`
}

type StartSessionRequest struct {
	CrewSize int `json:"crew_size"`
}

type EndSessionRequest struct {
	// Optional one-time person-hours override, applied at termination.
	PersonHours *string `json:"person_hours,omitempty"`
}

type UpdateCrewRequest struct {
	CrewSize int `json:"crew_size"`
}

func toSessionDTO(s *ledger.Session) SessionDTO {
	dto := SessionDTO{
		ID:            string(s.ID),
		ClientID:      string(s.ClientID),
		StartTime:     s.StartTime.Format(time.RFC3339),
		HourlyRate:    s.HourlyRate.StringFixed(2),
		CrewSize:      s.CrewSize,
		DurationHours: s.DurationHours.String(),
		PersonHours:   s.PersonHours.String(),
		Amount:        s.Amount.StringFixed(2),
		Status:        string(s.Status),
	}
	if s.EndTime != nil {
		t := s.EndTime.Format(time.RFC3339)
		dto.EndTime = &t
	}
	return dto
}

// =============================================================================
// SUMMARIES & MONEY STATE
// =============================================================================

type SummaryDTO struct {
	ClientID           string `json:"client_id"`
	UnpaidBalance      string `json:"unpaid_balance"`
	RequestedBalance   string `json:"requested_balance"`
	TotalUnpaidBalance string `json:"total_unpaid_balance"`
	UnpaidPersonHours  string `json:"unpaid_person_hours"`
	UnpaidSessions     int    `json:"unpaid_sessions"`
	RequestedSessions  int    `json:"requested_sessions"`
	HasActiveSession   bool   `json:"has_active_session"`
	PaymentStatus      string `json:"payment_status"`
}

type MoneyStateDTO struct {
	SummaryDTO
	BalanceDueCents    int64       `json:"balance_due_cents"`
	UnpaidDurationSec  int64       `json:"unpaid_duration_sec"`
	LastPendingRequest *RequestDTO `json:"last_pending_request,omitempty"`
}

func toSummaryDTO(s ledger.Summary) SummaryDTO {
	return SummaryDTO{
		ClientID:           string(s.ClientID),
		UnpaidBalance:      s.UnpaidBalance.StringFixed(2),
		RequestedBalance:   s.RequestedBalance.StringFixed(2),
		TotalUnpaidBalance: s.TotalUnpaidBalance.StringFixed(2),
		UnpaidPersonHours:  s.UnpaidPersonHours.String(),
		UnpaidSessions:     s.UnpaidSessions,
		RequestedSessions:  s.RequestedSessions,
		HasActiveSession:   s.HasActiveSession,
		PaymentStatus:      string(s.PaymentStatus),
	}
}

func toMoneyStateDTO(ms *ledger.MoneyState) MoneyStateDTO {
	dto := MoneyStateDTO{
		SummaryDTO:        toSummaryDTO(ms.Summary),
		BalanceDueCents:   ms.BalanceDueCents,
		UnpaidDurationSec: ms.UnpaidDurationSec,
	}
	if ms.LastPendingRequest != nil {
		r := toRequestDTO(ms.LastPendingRequest)
		dto.LastPendingRequest = &r
	}
	return dto
}

// =============================================================================
// PAYMENT REQUESTS & PAYMENTS
// =============================================================================

type RequestDTO struct {
	ID               string   `json:"id"`
	ClientID         string   `json:"client_id"`
	SessionIDs       []string `json:"session_ids"`
	TotalAmount      string   `json:"total_amount"`
	TotalPersonHours string   `json:"total_person_hours"`
	Status           string   `json:"status"`
	CreatedAt        string   `json:"created_at"`
}

type RequestPaymentRequest struct {
	// Empty means "all unpaid sessions".
	SessionIDs []string `json:"session_ids"`
}

type PaymentDTO struct {
	ID         string   `json:"id"`
	ClientID   string   `json:"client_id"`
	SessionIDs []string `json:"session_ids"`
	Amount     string   `json:"amount"`
	Method     string   `json:"method"`
	PaidAt     string   `json:"paid_at"`
}

type MarkPaidRequest struct {
	SessionIDs []string `json:"session_ids"`
	Amount     string   `json:"amount"`
	Method     string   `json:"method"`
}

func toRequestDTO(r *ledger.PaymentRequest) RequestDTO {
	return RequestDTO{
		ID:               string(r.ID),
		ClientID:         string(r.ClientID),
		SessionIDs:       sessionIDStrings(r.SessionIDs),
		TotalAmount:      r.TotalAmount.StringFixed(2),
		TotalPersonHours: r.TotalPersonHours.String(),
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTO(p *ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:         string(p.ID),
		ClientID:   string(p.ClientID),
		SessionIDs: sessionIDStrings(p.SessionIDs),
		Amount:     p.Amount.StringFixed(2),
		Method:     string(p.Method),
		PaidAt:     p.PaidAt.Format(time.RFC3339),
	}
}

func sessionIDStrings(ids []ledger.SessionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toSessionIDs(ids []string) []ledger.SessionID {
	out := make([]ledger.SessionID, len(ids))
	for i, id := range ids {
		out[i] = ledger.SessionID(id)
	}
	return out
}

// =============================================================================
// ACTIVITIES
// =============================================================================

type ActivityDTO struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ClientID  string          `json:"client_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func toActivityDTO(a ledger.Activity) (ActivityDTO, error) {
	data, err := ledger.EncodeActivityData(a.Data)
	if err != nil {
		return ActivityDTO{}, err
	}
	return ActivityDTO{
		ID:        string(a.ID),
		Type:      string(a.Type()),
		ClientID:  string(a.ClientID),
		Timestamp: a.Timestamp.Format(time.RFC3339),
		Data:      data,
	}, nil
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
