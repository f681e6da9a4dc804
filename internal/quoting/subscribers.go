package quoting

import (
	"context"
	"fmt"

	"marketplace_quotes_backend/internal/events"
	"marketplace_quotes_backend/internal/quoting/domain"
)

// SubscribeRelay registers the module's consumers of relayed log entries:
// every entry refreshes the provider's metrics snapshot, and an accepted
// quotation archives the job's history when an archive is configured.
func (m *Module) SubscribeRelay(bus events.Bus) {
	events.SubscribeQuoteEvents(bus, events.HandlerFunc(m.refreshMetrics))
	if m.services.Archiver != nil {
		bus.Subscribe(events.QuoteEventName(domain.EventQuoteAccepted), events.HandlerFunc(m.archiveJob))
	}
}

func (m *Module) refreshMetrics(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteEventRecorded)
	if !ok {
		return nil
	}
	if _, err := m.services.Metrics.Refresh(ctx, e.Record.ProviderID); err != nil {
		return fmt.Errorf("refresh metrics for provider %s: %w", e.Record.ProviderID, err)
	}
	return nil
}

func (m *Module) archiveJob(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteEventRecorded)
	if !ok {
		return nil
	}
	if _, err := m.services.Archiver.ExportJob(ctx, e.Record.JobID); err != nil {
		return fmt.Errorf("archive job %s: %w", e.Record.JobID, err)
	}
	return nil
}
