package events

import (
	"context"
	"testing"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
)

func TestQuoteEventRecordedName(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewQuoteEventRecorded(domain.QuoteEvent{ID: uuid.New(), Type: domain.EventQuoteAccepted, CreatedAt: at})

	if got := e.EventName(); got != "quoting.event.QUOTE_ACCEPTED" {
		t.Fatalf("unexpected event name %q", got)
	}
	if !e.OccurredAt().Equal(at) {
		t.Fatalf("expected occurred at %v, got %v", at, e.OccurredAt())
	}
}

func TestSubscribeQuoteEventsReceivesEveryType(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	seen := map[domain.EventType]int{}
	SubscribeQuoteEvents(bus, HandlerFunc(func(_ context.Context, ev Event) error {
		seen[ev.(QuoteEventRecorded).Record.Type]++
		return nil
	}))

	for _, typ := range domain.AllEventTypes {
		if err := bus.PublishSync(context.Background(), NewQuoteEventRecorded(domain.QuoteEvent{Type: typ})); err != nil {
			t.Fatalf("publish %s: %v", typ, err)
		}
	}
	for _, typ := range domain.AllEventTypes {
		if seen[typ] != 1 {
			t.Errorf("expected one delivery of %s, got %d", typ, seen[typ])
		}
	}
}
