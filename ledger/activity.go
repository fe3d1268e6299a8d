/*
activity.go - Append-only journal of domain events

PURPOSE:
  Every lifecycle transition (session start/end, payment request, settlement)
  appends one Activity. The journal is a denormalized read projection used to
  render a client-facing timeline. It is NEVER a source of truth for balances:
  its numbers are snapshot copies taken at transition time, and the whole log
  could be rebuilt from sessions/requests/payments if lost.

INVARIANTS:
  - Write-once: activities are never updated or deleted.
  - Stable ordering: timestamp ascending, ties broken by insertion sequence.

TAGGED PAYLOADS:
  Each activity type carries exactly the fields relevant to that event, as a
  typed variant rather than an untyped bag. Consumers switch on the concrete
  type instead of probing optional fields:

    switch d := activity.Data.(type) {
    case ledger.PaymentCompletedData:
        fmt.Println(d.Method, d.Amount)
    }

SEE ALSO:
  - store.go: ActivityLog persistence interface
  - session.go, request.go, settlement.go: producers
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACTIVITY TYPES
// =============================================================================

type ActivityType string

const (
	ActivitySessionStart     ActivityType = "session_start"
	ActivitySessionEnd       ActivityType = "session_end"
	ActivityPaymentRequest   ActivityType = "payment_request"
	ActivityPaymentCompleted ActivityType = "payment_completed"
)

// ActivityData is the tagged payload union. Each variant knows its own type
// tag, so stores can persist and recover the concrete variant.
type ActivityData interface {
	ActivityType() ActivityType
}

// SessionStartData records the shape of the session at the moment work began.
type SessionStartData struct {
	SessionID  SessionID       `json:"session_id"`
	CrewSize   int             `json:"crew_size"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

func (SessionStartData) ActivityType() ActivityType { return ActivitySessionStart }

// SessionEndData snapshots the computed numbers for audit purposes. These are
// copies of the session row's values, never a second source of truth.
type SessionEndData struct {
	SessionID     SessionID       `json:"session_id"`
	DurationHours decimal.Decimal `json:"duration_hours"`
	PersonHours   decimal.Decimal `json:"person_hours"`
	Amount        decimal.Decimal `json:"amount"`
}

func (SessionEndData) ActivityType() ActivityType { return ActivitySessionEnd }

// PaymentRequestData records the aggregate ask.
type PaymentRequestData struct {
	BatchID      RequestID       `json:"batch_id"`
	SessionCount int             `json:"session_count"`
	PersonHours  decimal.Decimal `json:"person_hours"`
	Amount       decimal.Decimal `json:"amount"`
}

func (PaymentRequestData) ActivityType() ActivityType { return ActivityPaymentRequest }

// PaymentCompletedData records the settlement as displayed in the timeline.
type PaymentCompletedData struct {
	PaymentID    PaymentID       `json:"payment_id"`
	Method       PaymentMethod   `json:"method"`
	SessionCount int             `json:"session_count"`
	PersonHours  decimal.Decimal `json:"person_hours"`
	Amount       decimal.Decimal `json:"amount"`
}

func (PaymentCompletedData) ActivityType() ActivityType { return ActivityPaymentCompleted }

// =============================================================================
// ACTIVITY - One journal entry
// =============================================================================

type Activity struct {
	ID       ActivityID
	ClientID ClientID

	// When the event happened (domain time, not insert time).
	Timestamp time.Time

	// Insertion sequence assigned by the store; breaks timestamp ties so the
	// timeline ordering is stable.
	Seq int64

	Data ActivityData
}

// Type returns the tag of the payload.
func (a *Activity) Type() ActivityType {
	if a.Data == nil {
		return ""
	}
	return a.Data.ActivityType()
}

// ActivityFilter narrows a timeline query. Nil fields match everything.
type ActivityFilter struct {
	ClientID *ClientID
	Types    []ActivityType
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Matches reports whether the activity passes the filter (time range and
// limit excluded; stores handle those).
func (f *ActivityFilter) Matches(a Activity) bool {
	if f.ClientID != nil && a.ClientID != *f.ClientID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if a.Type() == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && a.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// PAYLOAD CODEC - Used by stores to persist the tagged union
// =============================================================================

// EncodeActivityData serializes a payload variant to JSON.
func EncodeActivityData(d ActivityData) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("activity data is nil")
	}
	return json.Marshal(d)
}

// DecodeActivityData recovers the concrete variant for a stored type tag.
func DecodeActivityData(t ActivityType, raw []byte) (ActivityData, error) {
	switch t {
	case ActivitySessionStart:
		var d SessionStartData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ActivitySessionEnd:
		var d SessionEndData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ActivityPaymentRequest:
		var d PaymentRequestData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ActivityPaymentCompleted:
		var d PaymentCompletedData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown activity type %q", t)
	}
}
