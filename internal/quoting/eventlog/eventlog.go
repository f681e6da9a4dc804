// Package eventlog is the append-only audit record of every invite and
// quotation transition. Derived state (metrics, status history) is rebuilt
// from it alone.
package eventlog

import (
	"context"
	"fmt"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/platform/clock"

	"github.com/google/uuid"
)

// Log appends to and reads from the event store. It exposes no update or
// delete besides the processed flag.
type Log struct {
	store repository.EventStore
	clock clock.Clock
}

func New(store repository.EventStore, c clock.Clock) *Log {
	return &Log{store: store, clock: c}
}

// Append stamps e with an id and creation time when missing and writes it
// inside tx, so the event commits or rolls back with the state change.
func (l *Log) Append(ctx context.Context, tx repository.Tx, e *domain.QuoteEvent) error {
	if !e.Type.Valid() {
		return fmt.Errorf("append event: unknown type %q", e.Type)
	}
	if e.JobID == uuid.Nil || e.ProviderID == uuid.Nil {
		return fmt.Errorf("append %s event: job and provider are required", e.Type)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.clock.Now()
	}
	if e.Payload == nil {
		e.Payload = domain.Payload{}
	}
	e.Processed = false
	if err := tx.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return nil
}

// Query returns matching events ordered by created_at, then sequence.
func (l *Log) Query(ctx context.Context, filter domain.EventFilter) ([]domain.QuoteEvent, error) {
	return l.store.QueryEvents(ctx, filter)
}

// Scan streams matching events in log order without materializing them.
func (l *Log) Scan(ctx context.Context, filter domain.EventFilter, fn func(domain.QuoteEvent) error) error {
	return l.store.ScanEvents(ctx, filter, fn)
}

// MarkProcessed flips the processed flag. Marking twice is harmless.
func (l *Log) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return l.store.MarkEventProcessed(ctx, id)
}

// ListUnprocessed returns up to limit events not yet handled by the relay,
// oldest first.
func (l *Log) ListUnprocessed(ctx context.Context, limit int) ([]domain.QuoteEvent, error) {
	return l.store.QueryEvents(ctx, domain.EventFilter{Unprocessed: true, Limit: limit})
}
