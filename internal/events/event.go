// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Quoting Domain Events
// =============================================================================

const quoteEventPrefix = "quoting.event."

// QuoteEventName is the bus name under which log entries of type t are relayed.
func QuoteEventName(t domain.EventType) string {
	return quoteEventPrefix + string(t)
}

// QuoteEventRecorded is published by the outbox relay for every event-log
// entry, after it has been committed.
type QuoteEventRecorded struct {
	BaseEvent
	Record domain.QuoteEvent `json:"record"`
}

// NewQuoteEventRecorded wraps a committed log entry for the bus.
func NewQuoteEventRecorded(record domain.QuoteEvent) QuoteEventRecorded {
	return QuoteEventRecorded{
		BaseEvent: events.NewBaseEventAt(record.CreatedAt),
		Record:    record,
	}
}

func (e QuoteEventRecorded) EventName() string { return QuoteEventName(e.Record.Type) }

// AllQuoteEventNames lists every bus name a relayed log entry can carry.
// Subscribers that care about the whole log subscribe to each.
func AllQuoteEventNames() []string {
	names := make([]string, len(domain.AllEventTypes))
	for i, t := range domain.AllEventTypes {
		names[i] = QuoteEventName(t)
	}
	return names
}
