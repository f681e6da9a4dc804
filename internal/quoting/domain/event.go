package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Payload keys written by the lifecycle operations.
const (
	PayloadOldStatus       = "old_status"
	PayloadNewStatus       = "new_status"
	PayloadPrice           = "price"
	PayloadDistanceKm      = "distance_km"
	PayloadInvitedAt       = "invited_at"
	PayloadExpiresAt       = "expires_at"
	PayloadInviteOldStatus = "invite_old_status"
	PayloadInviteNewStatus = "invite_new_status"
	PayloadReason          = "reason"
	PayloadAcceptedQuoteID = "accepted_quote_id"
	PayloadChangedFields   = "changed_fields"
)

// ReasonSiblingAccepted marks quotations rejected because another quotation
// on the same job was accepted.
const ReasonSiblingAccepted = "another_quotation_accepted"

// Payload is the free-form body of a QuoteEvent.
type Payload map[string]any

// Float reads a numeric value regardless of how it was decoded.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String reads a string value.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Time reads an RFC 3339 timestamp.
func (p Payload) Time(key string) (time.Time, bool) {
	switch v := p[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// QuoteEvent is one immutable audit record. Sequence is assigned by the
// store on append and breaks ties between equal CreatedAt values.
type QuoteEvent struct {
	ID         uuid.UUID
	Sequence   int64
	Type       EventType
	QuoteID    *uuid.UUID
	InviteID   *uuid.UUID
	JobID      uuid.UUID
	ProviderID uuid.UUID
	CustomerID *uuid.UUID
	Payload    Payload
	Processed  bool
	CreatedAt  time.Time
}

// IsInviteScoped reports whether the event concerns an invite rather than
// a quotation.
func (e QuoteEvent) IsInviteScoped() bool {
	return e.InviteID != nil && e.QuoteID == nil
}

// EventFilter narrows an event log query. Zero values mean "any".
type EventFilter struct {
	JobID         *uuid.UUID
	ProviderID    *uuid.UUID
	Types         []EventType
	Since         *time.Time
	AfterSequence int64
	Unprocessed   bool
	Limit         int
}

// Matches reports whether e satisfies the filter. Stores that cannot push a
// predicate down use it to filter in memory.
func (f EventFilter) Matches(e QuoteEvent) bool {
	if f.JobID != nil && e.JobID != *f.JobID {
		return false
	}
	if f.ProviderID != nil && e.ProviderID != *f.ProviderID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	if e.Sequence <= f.AfterSequence {
		return false
	}
	if f.Unprocessed && e.Processed {
		return false
	}
	return true
}

// EventLess orders events by creation time, then by sequence.
func EventLess(a, b QuoteEvent) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Sequence < b.Sequence
}
