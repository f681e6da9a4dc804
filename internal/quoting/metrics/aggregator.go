package metrics

import (
	"context"
	"fmt"
	"sort"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/eventlog"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Mode selects how metrics are computed.
type Mode string

const (
	ModeReplay      Mode = "replay"
	ModeIncremental Mode = "incremental"
)

// Aggregator computes provider metrics from the event log.
type Aggregator struct {
	events    *eventlog.Log
	snapshots SnapshotStore
	log       *logger.Logger
	group     singleflight.Group
}

// NewAggregator wires an aggregator. A nil snapshots store keeps snapshots in
// memory.
func NewAggregator(events *eventlog.Log, snapshots SnapshotStore, log *logger.Logger) *Aggregator {
	if snapshots == nil {
		snapshots = NewMemorySnapshots()
	}
	return &Aggregator{events: events, snapshots: snapshots, log: log}
}

// Compute dispatches on mode. Unknown modes fall back to incremental.
func (a *Aggregator) Compute(ctx context.Context, providerID uuid.UUID, mode Mode) (domain.QuotationMetrics, error) {
	if mode == ModeReplay {
		return a.Recompute(ctx, providerID)
	}
	return a.Refresh(ctx, providerID)
}

// Recompute replays the provider's whole history into a fresh accumulator
// and stores the result as the new snapshot.
func (a *Aggregator) Recompute(ctx context.Context, providerID uuid.UUID) (domain.QuotationMetrics, error) {
	acc := NewAccumulator(providerID)
	if err := a.fold(ctx, acc); err != nil {
		return domain.QuotationMetrics{}, err
	}
	a.save(ctx, acc)
	return acc.Metrics(), nil
}

// Refresh resumes from the cached snapshot and folds only events appended
// since. Concurrent refreshes for one provider share a single fold.
func (a *Aggregator) Refresh(ctx context.Context, providerID uuid.UUID) (domain.QuotationMetrics, error) {
	v, err, _ := a.group.Do(providerID.String(), func() (any, error) {
		acc, err := a.snapshots.Load(ctx, providerID)
		if err != nil {
			a.log.WithContext(ctx).Warn("metrics snapshot unavailable, replaying", "provider_id", providerID, "error", err)
			acc = nil
		}
		if acc == nil || acc.ProviderID != providerID {
			acc = NewAccumulator(providerID)
		}
		before := acc.LastSequence
		if err := a.fold(ctx, acc); err != nil {
			return domain.QuotationMetrics{}, err
		}
		if acc.LastSequence != before || before == 0 {
			a.save(ctx, acc)
		}
		return acc.Metrics(), nil
	})
	if err != nil {
		return domain.QuotationMetrics{}, err
	}
	return v.(domain.QuotationMetrics), nil
}

// fold applies every event after acc.LastSequence in sequence order.
func (a *Aggregator) fold(ctx context.Context, acc *Accumulator) error {
	providerID := acc.ProviderID
	pending := make([]domain.QuoteEvent, 0)
	err := a.events.Scan(ctx, domain.EventFilter{ProviderID: &providerID, AfterSequence: acc.LastSequence}, func(e domain.QuoteEvent) error {
		pending = append(pending, e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan events for provider %s: %w", providerID, err)
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Sequence < pending[j].Sequence })
	for _, e := range pending {
		acc.Apply(e)
	}
	return nil
}

func (a *Aggregator) save(ctx context.Context, acc *Accumulator) {
	if err := a.snapshots.Save(ctx, acc); err != nil {
		a.log.WithContext(ctx).Warn("failed to store metrics snapshot", "provider_id", acc.ProviderID, "error", err)
	}
}
