// Package events re-exports the platform event bus for convenience.
// This allows internal modules to import events from internal/events
// while the implementation lives in platform/events.
package events

import (
	platformevents "marketplace_quotes_backend/platform/events"
	"marketplace_quotes_backend/platform/logger"
)

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
// This is a convenience re-export from platform/events.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// SubscribeQuoteEvents registers h for every relayed event-log entry.
func SubscribeQuoteEvents(bus Bus, h Handler) {
	for _, name := range AllQuoteEventNames() {
		bus.Subscribe(name, h)
	}
}
