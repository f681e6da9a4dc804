package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newInvite(jobID, providerID uuid.UUID) domain.JobQuotationInvite {
	return domain.JobQuotationInvite{
		ID:         uuid.New(),
		JobID:      jobID,
		ProviderID: providerID,
		InvitedAt:  t0,
		ExpiresAt:  t0.Add(24 * time.Hour),
		Status:     domain.InviteStatusInvited,
		UpdatedAt:  t0,
	}
}

func TestMemoryRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID := uuid.New()
	boom := errors.New("boom")

	err := m.WithinJob(ctx, jobID, func(tx Tx) error {
		if err := tx.InsertInvite(ctx, newInvite(jobID, uuid.New())); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &domain.QuoteEvent{ID: uuid.New(), Type: domain.EventQuoteInvited, JobID: jobID, CreatedAt: t0}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	invites, _ := m.ListInvites(ctx, InviteListParams{JobID: &jobID})
	events, _ := m.QueryEvents(ctx, domain.EventFilter{})
	if len(invites) != 0 || len(events) != 0 {
		t.Fatalf("expected nothing applied, got %d invites and %d events", len(invites), len(events))
	}
}

func TestMemoryRejectsDuplicateInviteWithinAndAcrossTransactions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID, providerID := uuid.New(), uuid.New()

	err := m.WithinJob(ctx, jobID, func(tx Tx) error {
		if err := tx.InsertInvite(ctx, newInvite(jobID, providerID)); err != nil {
			return err
		}
		return tx.InsertInvite(ctx, newInvite(jobID, providerID))
	})
	if !errors.Is(err, domain.ErrDuplicateInvite) {
		t.Fatalf("expected duplicate invite inside one tx, got %v", err)
	}

	if err := m.WithinJob(ctx, jobID, func(tx Tx) error { return tx.InsertInvite(ctx, newInvite(jobID, providerID)) }); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = m.WithinJob(ctx, jobID, func(tx Tx) error { return tx.InsertInvite(ctx, newInvite(jobID, providerID)) })
	if !errors.Is(err, domain.ErrDuplicateInvite) {
		t.Fatalf("expected duplicate invite across tx, got %v", err)
	}
}

func TestMemoryUpdateInviteIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID := uuid.New()
	inv := newInvite(jobID, uuid.New())
	_ = m.WithinJob(ctx, jobID, func(tx Tx) error { return tx.InsertInvite(ctx, inv) })

	expired := inv
	expired.Status = domain.InviteStatusExpired
	var first, second bool
	_ = m.WithinJob(ctx, jobID, func(tx Tx) error {
		var err error
		first, err = tx.UpdateInvite(ctx, expired, domain.InviteStatusInvited)
		return err
	})
	_ = m.WithinJob(ctx, jobID, func(tx Tx) error {
		var err error
		second, err = tx.UpdateInvite(ctx, expired, domain.InviteStatusInvited)
		return err
	})
	if !first || second {
		t.Fatalf("expected first CAS to win and second to miss, got %v %v", first, second)
	}
}

func TestMemoryAllowsOneAcceptedQuotationPerJob(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID := uuid.New()
	a := domain.Quotation{ID: uuid.New(), JobID: jobID, ProviderID: uuid.New(), Status: domain.QuotationStatusPending, CreatedAt: t0}
	b := domain.Quotation{ID: uuid.New(), JobID: jobID, ProviderID: uuid.New(), Status: domain.QuotationStatusPending, CreatedAt: t0.Add(time.Minute)}
	_ = m.WithinJob(ctx, jobID, func(tx Tx) error {
		if err := tx.InsertQuotation(ctx, a); err != nil {
			return err
		}
		return tx.InsertQuotation(ctx, b)
	})

	a.Decide(domain.QuotationStatusAccepted, t0)
	b.Decide(domain.QuotationStatusAccepted, t0)
	var okA, okB bool
	_ = m.WithinJob(ctx, jobID, func(tx Tx) error {
		okA, _ = tx.UpdateQuotation(ctx, a, domain.QuotationStatusPending)
		okB, _ = tx.UpdateQuotation(ctx, b, domain.QuotationStatusPending)
		return nil
	})
	if !okA || okB {
		t.Fatalf("expected only the first acceptance to be written, got %v %v", okA, okB)
	}
}

func TestMemoryRejectsSecondPendingQuotation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID, providerID := uuid.New(), uuid.New()
	q := func() domain.Quotation {
		return domain.Quotation{ID: uuid.New(), JobID: jobID, ProviderID: providerID, Status: domain.QuotationStatusPending, CreatedAt: t0}
	}

	if err := m.WithinJob(ctx, jobID, func(tx Tx) error { return tx.InsertQuotation(ctx, q()) }); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := m.WithinJob(ctx, jobID, func(tx Tx) error { return tx.InsertQuotation(ctx, q()) })
	if !errors.Is(err, domain.ErrDuplicatePendingQuote) {
		t.Fatalf("expected duplicate pending quote, got %v", err)
	}
}

func TestMemoryEventsOrderedByCreatedAtThenSequence(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID := uuid.New()
	later := &domain.QuoteEvent{ID: uuid.New(), Type: domain.EventQuoteSubmitted, JobID: jobID, CreatedAt: t0.Add(time.Hour)}
	first := &domain.QuoteEvent{ID: uuid.New(), Type: domain.EventQuoteInvited, JobID: jobID, CreatedAt: t0}
	second := &domain.QuoteEvent{ID: uuid.New(), Type: domain.EventQuoteInvited, JobID: jobID, CreatedAt: t0}

	_ = m.WithinJob(ctx, jobID, func(tx Tx) error {
		for _, e := range []*domain.QuoteEvent{later, first, second} {
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := m.QueryEvents(ctx, domain.EventFilter{JobID: &jobID})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []uuid.UUID{first.ID, second.ID, later.ID}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	if got[0].Sequence >= got[1].Sequence {
		t.Fatalf("expected increasing sequence among equal timestamps")
	}
}

func TestMemoryMarkEventProcessed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	jobID := uuid.New()
	e := &domain.QuoteEvent{ID: uuid.New(), Type: domain.EventQuoteInvited, JobID: jobID, CreatedAt: t0}
	_ = m.WithinJob(ctx, jobID, func(tx Tx) error { return tx.AppendEvent(ctx, e) })

	for i := 0; i < 2; i++ {
		if err := m.MarkEventProcessed(ctx, e.ID); err != nil {
			t.Fatalf("mark processed: %v", err)
		}
	}
	pending, _ := m.QueryEvents(ctx, domain.EventFilter{Unprocessed: true})
	if len(pending) != 0 {
		t.Fatalf("expected no unprocessed events, got %d", len(pending))
	}
}
