package scheduler

import (
	"context"
	"fmt"
	"time"

	"marketplace_quotes_backend/internal/events"
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultRelayBatch = 100

// Outbox is the unprocessed tail of the event log.
type Outbox interface {
	ListUnprocessed(ctx context.Context, limit int) ([]domain.QuoteEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Relay publishes committed log entries on the bus in sequence order and
// marks each processed once every subscriber has handled it. A failed entry
// stays unprocessed and blocks the ones after it until the next poll.
type Relay struct {
	outbox Outbox
	bus    events.Bus
	batch  int
	log    *logger.Logger
}

func NewRelay(outbox Outbox, bus events.Bus, batch int, log *logger.Logger) *Relay {
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	return &Relay{outbox: outbox, bus: bus, batch: batch, log: log}
}

// RelayOnce publishes up to one batch and returns how many entries were
// marked processed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.ListUnprocessed(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed events: %w", err)
	}

	relayed := 0
	for _, e := range pending {
		if err := r.bus.PublishSync(ctx, events.NewQuoteEventRecorded(e)); err != nil {
			return relayed, fmt.Errorf("relay event %d (%s): %w", e.Sequence, e.Type, err)
		}
		if err := r.outbox.MarkProcessed(ctx, e.ID); err != nil {
			return relayed, fmt.Errorf("mark event %d processed: %w", e.Sequence, err)
		}
		relayed++
	}

	if relayed > 0 {
		r.log.Debug("outbox relayed", "events", relayed)
	}
	return relayed, nil
}

// Tick adapts RelayOnce to a Periodic.
func (r *Relay) Tick(ctx context.Context, _ time.Time) error {
	_, err := r.RelayOnce(ctx)
	return err
}
