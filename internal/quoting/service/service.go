// Package service implements the quoting workflow: matching a job to
// providers, the invite lifecycle, the quotation state machine and the
// scheduled sweeps. Every state change and its event are committed in one
// Store.WithinJob transaction.
package service

import (
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/eventlog"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultSweepBatch = 200

// Deps are the collaborators shared by every component in this package.
type Deps struct {
	Store  repository.Store
	Events *eventlog.Log
	Clock  clock.Clock
	Log    *logger.Logger
	// SweepBatch caps how many rows one sweep pass reads at a time.
	SweepBatch int
}

func (d Deps) sweepBatch() int {
	if d.SweepBatch > 0 {
		return d.SweepBatch
	}
	return defaultSweepBatch
}

func (d Deps) now() time.Time {
	return d.Clock.Now()
}

// transitions buffers state changes so they are logged only after commit.
type transitions []transition

type transition struct {
	entity string
	id     uuid.UUID
	from   string
	to     string
}

func (t *transitions) add(entity string, id uuid.UUID, from, to string) {
	*t = append(*t, transition{entity: entity, id: id, from: from, to: to})
}

func (t transitions) flush(log *logger.Logger) {
	for _, tr := range t {
		log.Transition(tr.entity, tr.id.String(), tr.from, tr.to)
	}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func inviteEvent(typ domain.EventType, inv domain.JobQuotationInvite, customerID *uuid.UUID, at time.Time, payload domain.Payload) *domain.QuoteEvent {
	inviteID := inv.ID
	return &domain.QuoteEvent{
		Type:       typ,
		InviteID:   &inviteID,
		JobID:      inv.JobID,
		ProviderID: inv.ProviderID,
		CustomerID: customerID,
		Payload:    payload,
		CreatedAt:  at,
	}
}

func quotationEvent(typ domain.EventType, q domain.Quotation, at time.Time, payload domain.Payload) *domain.QuoteEvent {
	quoteID := q.ID
	return &domain.QuoteEvent{
		Type:       typ,
		QuoteID:    &quoteID,
		InviteID:   q.InviteID,
		JobID:      q.JobID,
		ProviderID: q.ProviderID,
		CustomerID: q.CustomerID,
		Payload:    payload,
		CreatedAt:  at,
	}
}

func statusPayload(from, to string) domain.Payload {
	p := domain.Payload{domain.PayloadNewStatus: to}
	if from != "" {
		p[domain.PayloadOldStatus] = from
	}
	return p
}
