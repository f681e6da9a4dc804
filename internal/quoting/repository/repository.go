// Package repository persists the quoting aggregates and their event log.
//
// Every state change runs inside Store.WithinJob, which serializes writers on
// the same job and commits the entity change and its event together.
package repository

import (
	"context"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

// InviteListParams filters invite listings.
type InviteListParams struct {
	JobID      *uuid.UUID
	ProviderID *uuid.UUID
	Status     *domain.InviteStatus
	Limit      int
}

// QuotationListParams filters quotation listings.
type QuotationListParams struct {
	JobID      *uuid.UUID
	ProviderID *uuid.UUID
	Status     *domain.QuotationStatus
	Limit      int
}

// Reader exposes the read side shared by transactions and the store.
type Reader interface {
	GetCriteria(ctx context.Context, jobID uuid.UUID) (domain.JobEligibilityCriteria, error)
	GetInvite(ctx context.Context, id uuid.UUID) (domain.JobQuotationInvite, error)
	FindInvite(ctx context.Context, jobID, providerID uuid.UUID) (domain.JobQuotationInvite, bool, error)
	ListInvites(ctx context.Context, params InviteListParams) ([]domain.JobQuotationInvite, error)
	GetQuotation(ctx context.Context, id uuid.UUID) (domain.Quotation, error)
	ListQuotations(ctx context.Context, params QuotationListParams) ([]domain.Quotation, error)
}

// Tx is the write side, available only inside WithinJob.
type Tx interface {
	Reader

	InsertCriteria(ctx context.Context, c domain.JobEligibilityCriteria) error
	InsertInvite(ctx context.Context, inv domain.JobQuotationInvite) error
	// UpdateInvite persists inv only if the stored status still equals
	// expected. It reports whether the row was written.
	UpdateInvite(ctx context.Context, inv domain.JobQuotationInvite, expected domain.InviteStatus) (bool, error)
	InsertQuotation(ctx context.Context, q domain.Quotation) error
	// UpdateQuotation persists q only if the stored status still equals
	// expected. It reports whether the row was written.
	UpdateQuotation(ctx context.Context, q domain.Quotation, expected domain.QuotationStatus) (bool, error)
	// AppendEvent stores e and assigns its Sequence.
	AppendEvent(ctx context.Context, e *domain.QuoteEvent) error
}

// EventStore is the read and acknowledge side of the event log.
type EventStore interface {
	QueryEvents(ctx context.Context, filter domain.EventFilter) ([]domain.QuoteEvent, error)
	ScanEvents(ctx context.Context, filter domain.EventFilter, fn func(domain.QuoteEvent) error) error
	// MarkEventProcessed flips processed from false to true. It is a no-op
	// for events already processed.
	MarkEventProcessed(ctx context.Context, id uuid.UUID) error
}

// SweepReader finds rows that a sweep may need to transition.
type SweepReader interface {
	ListOverdueInvites(ctx context.Context, now time.Time, limit int) ([]domain.JobQuotationInvite, error)
	ListStaleQuotations(ctx context.Context, now time.Time, limit int) ([]domain.Quotation, error)
}

// Store is the full persistence contract.
type Store interface {
	Reader
	EventStore
	SweepReader
	// WithinJob runs fn in a transaction that holds the job's write lock.
	// fn's error rolls everything back.
	WithinJob(ctx context.Context, jobID uuid.UUID, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
