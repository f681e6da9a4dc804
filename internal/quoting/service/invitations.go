package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/platform/apperr"

	"github.com/google/uuid"
)

// InvitationManager owns JobQuotationInvite records and their expiry.
type InvitationManager struct {
	Deps
}

func NewInvitationManager(deps Deps) *InvitationManager {
	return &InvitationManager{Deps: deps}
}

// CreateInvites opens one INVITED invite per provider, expiring after the
// criteria's invite window. The batch is all or nothing: an existing invite
// for any (job, provider) pair fails the whole call with DuplicateInvite.
func (m *InvitationManager) CreateInvites(ctx context.Context, criteria domain.JobEligibilityCriteria, providers []domain.ProviderProfile) ([]domain.JobQuotationInvite, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return []domain.JobQuotationInvite{}, nil
	}

	var created []domain.JobQuotationInvite
	var log transitions
	err := m.Store.WithinJob(ctx, criteria.JobID, func(tx repository.Tx) error {
		log = nil
		var err error
		created, err = m.createInvitesTx(ctx, tx, criteria, providers, m.now(), &log)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.flush(m.Log.WithContext(ctx))
	return created, nil
}

func (m *InvitationManager) createInvitesTx(ctx context.Context, tx repository.Tx, criteria domain.JobEligibilityCriteria, providers []domain.ProviderProfile, now time.Time, log *transitions) ([]domain.JobQuotationInvite, error) {
	customerID := optionalID(criteria.CustomerID)
	out := make([]domain.JobQuotationInvite, 0, len(providers))
	for _, p := range providers {
		inv := domain.JobQuotationInvite{
			ID:            uuid.New(),
			JobID:         criteria.JobID,
			ProviderID:    p.ID,
			ProviderEmail: p.Email,
			JobCategory:   criteria.RequiredCategory,
			DistanceKm:    p.DistanceKm,
			InvitedAt:     now,
			ExpiresAt:     now.Add(criteria.InviteWindow()),
			Status:        domain.InviteStatusInvited,
			UpdatedAt:     now,
		}
		if err := tx.InsertInvite(ctx, inv); err != nil {
			return nil, err
		}

		payload := statusPayload("", string(domain.InviteStatusInvited))
		payload[domain.PayloadDistanceKm] = inv.DistanceKm
		payload[domain.PayloadInvitedAt] = stamp(inv.InvitedAt)
		payload[domain.PayloadExpiresAt] = stamp(inv.ExpiresAt)
		if err := m.Events.Append(ctx, tx, inviteEvent(domain.EventQuoteInvited, inv, customerID, now, payload)); err != nil {
			return nil, err
		}
		log.add("invite", inv.ID, "", string(inv.Status))
		out = append(out, inv)
	}
	return out, nil
}

// RecordResponse links a pending quotation that was submitted without an
// invite to inviteID and moves the invite to RESPONDED. The change is
// recorded as a QUOTE_UPDATED event carrying the invite transition.
//
// The invite must be INVITED and not past its expiry, and the quotation must
// belong to the same job and provider.
func (m *InvitationManager) RecordResponse(ctx context.Context, inviteID, quotationID uuid.UUID) (domain.JobQuotationInvite, error) {
	inv, err := m.Store.GetInvite(ctx, inviteID)
	if err != nil {
		return domain.JobQuotationInvite{}, err
	}

	var log transitions
	err = m.Store.WithinJob(ctx, inv.JobID, func(tx repository.Tx) error {
		log = nil
		current, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		q, err := tx.GetQuotation(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.JobID != current.JobID || q.ProviderID != current.ProviderID {
			return domain.Invalid("quotation does not belong to the invite's job and provider")
		}
		if q.Status != domain.QuotationStatusPending {
			return domain.InvalidTransition("quotation", string(q.Status), string(domain.QuotationStatusPending), q)
		}
		if q.InviteID != nil {
			return apperr.Conflict(fmt.Sprintf("quotation %s is already linked to invite %s", q.ID, *q.InviteID)).
				WithCode(domain.CodeInvalidTransition)
		}

		now := m.now()
		responded, err := m.respondTx(ctx, tx, current, q.ID, now)
		if err != nil {
			return err
		}

		prev := q
		q.InviteID = &responded.ID
		q.UpdatedAt = now
		ok, err := tx.UpdateQuotation(ctx, q, prev.Status)
		if err != nil {
			return err
		}
		if !ok {
			return m.staleQuotation(ctx, tx, q.ID, domain.QuotationStatusPending)
		}

		payload := statusPayload(string(q.Status), string(q.Status))
		payload[domain.PayloadInviteOldStatus] = string(domain.InviteStatusInvited)
		payload[domain.PayloadInviteNewStatus] = string(domain.InviteStatusResponded)
		payload[domain.PayloadInvitedAt] = stamp(responded.InvitedAt)
		if err := m.Events.Append(ctx, tx, quotationEvent(domain.EventQuoteUpdated, q, now, payload)); err != nil {
			return err
		}
		log.add("invite", responded.ID, string(domain.InviteStatusInvited), string(domain.InviteStatusResponded))
		inv = responded
		return nil
	})
	if err != nil {
		return domain.JobQuotationInvite{}, err
	}
	log.flush(m.Log.WithContext(ctx))
	return inv, nil
}

// respondTx moves inv to RESPONDED. It writes no event; the caller records
// the response on the quotation event it emits in the same transaction.
func (m *InvitationManager) respondTx(ctx context.Context, tx repository.Tx, inv domain.JobQuotationInvite, quotationID uuid.UUID, now time.Time) (domain.JobQuotationInvite, error) {
	if !inv.Status.CanTransitionTo(domain.InviteStatusResponded) {
		return domain.JobQuotationInvite{}, domain.InvalidTransition("invite", string(inv.Status), string(domain.InviteStatusResponded), inv)
	}
	if inv.IsOverdue(now) {
		return domain.JobQuotationInvite{}, apperr.Wrap(apperr.KindConflict,
			fmt.Sprintf("invite %s expired at %s", inv.ID, stamp(inv.ExpiresAt)), domain.ErrInvalidTransition).
			WithCode(domain.CodeInvalidTransition).
			WithDetails(inv)
	}

	next := inv
	next.Status = domain.InviteStatusResponded
	next.Responded = true
	next.ResponseAt = &now
	next.QuotationID = &quotationID
	next.UpdatedAt = now

	ok, err := tx.UpdateInvite(ctx, next, domain.InviteStatusInvited)
	if err != nil {
		return domain.JobQuotationInvite{}, err
	}
	if !ok {
		current, err := tx.GetInvite(ctx, inv.ID)
		if err != nil {
			return domain.JobQuotationInvite{}, err
		}
		return domain.JobQuotationInvite{}, domain.InvalidTransition("invite", string(current.Status), string(domain.InviteStatusResponded), current)
	}
	return next, nil
}

// SweepExpired transitions every INVITED invite past its expiry. Invites the
// provider opened become IGNORED (PROVIDER_IGNORED), the rest EXPIRED
// (invite-scoped QUOTE_EXPIRED). Each row is re-read under the job lock, so
// a second sweep over the same rows changes nothing and emits nothing.
func (m *InvitationManager) SweepExpired(ctx context.Context, now time.Time) ([]domain.JobQuotationInvite, error) {
	swept := make([]domain.JobQuotationInvite, 0)
	var errs []error
	batch := m.sweepBatch()

	for {
		overdue, err := m.Store.ListOverdueInvites(ctx, now, batch)
		if err != nil {
			return swept, fmt.Errorf("list overdue invites: %w", err)
		}

		progressed := 0
		for _, candidate := range overdue {
			inv, changed, err := m.lapse(ctx, candidate, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("sweep invite %s: %w", candidate.ID, err))
				continue
			}
			if changed {
				swept = append(swept, inv)
				progressed++
			}
		}
		if len(overdue) < batch || progressed == 0 {
			break
		}
	}

	m.Log.SweepCompleted("invites", len(swept))
	return swept, errors.Join(errs...)
}

func (m *InvitationManager) lapse(ctx context.Context, candidate domain.JobQuotationInvite, now time.Time) (domain.JobQuotationInvite, bool, error) {
	var out domain.JobQuotationInvite
	changed := false
	var log transitions

	err := m.Store.WithinJob(ctx, candidate.JobID, func(tx repository.Tx) error {
		log = nil
		changed = false
		inv, err := tx.GetInvite(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if !inv.IsOverdue(now) {
			return nil
		}

		next := inv
		next.Status = inv.LapseStatus()
		next.UpdatedAt = now
		ok, err := tx.UpdateInvite(ctx, next, domain.InviteStatusInvited)
		if err != nil || !ok {
			return err
		}

		eventType, _ := domain.InviteEventFor(next.Status)
		payload := statusPayload(string(inv.Status), string(next.Status))
		payload[domain.PayloadInvitedAt] = stamp(inv.InvitedAt)
		payload[domain.PayloadExpiresAt] = stamp(inv.ExpiresAt)
		if err := m.Events.Append(ctx, tx, inviteEvent(eventType, next, m.customerOf(ctx, tx, inv.JobID), now, payload)); err != nil {
			return err
		}
		log.add("invite", inv.ID, string(inv.Status), string(next.Status))
		out = next
		changed = true
		return nil
	})
	if err != nil {
		return domain.JobQuotationInvite{}, false, err
	}
	log.flush(m.Log.WithContext(ctx))
	return out, changed, nil
}

// MarkViewed records the first time the provider opened the invite. It is
// not a status transition and writes no event. Viewing a closed invite is a
// no-op.
func (m *InvitationManager) MarkViewed(ctx context.Context, inviteID, providerID uuid.UUID) (domain.JobQuotationInvite, error) {
	inv, err := m.Store.GetInvite(ctx, inviteID)
	if err != nil {
		return domain.JobQuotationInvite{}, err
	}
	if inv.ProviderID != providerID {
		return domain.JobQuotationInvite{}, domain.NotFound("invite", inviteID)
	}

	err = m.Store.WithinJob(ctx, inv.JobID, func(tx repository.Tx) error {
		current, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		inv = current
		if current.ViewedAt != nil || current.Status != domain.InviteStatusInvited {
			return nil
		}
		now := m.now()
		current.ViewedAt = &now
		current.UpdatedAt = now
		ok, err := tx.UpdateInvite(ctx, current, domain.InviteStatusInvited)
		if err != nil {
			return err
		}
		if ok {
			inv = current
		}
		return nil
	})
	if err != nil {
		return domain.JobQuotationInvite{}, err
	}
	return inv, nil
}

// GetInvite returns one invite.
func (m *InvitationManager) GetInvite(ctx context.Context, id uuid.UUID) (domain.JobQuotationInvite, error) {
	return m.Store.GetInvite(ctx, id)
}

// ListProviderInvites returns the provider's invites, newest first.
func (m *InvitationManager) ListProviderInvites(ctx context.Context, providerID uuid.UUID, status *domain.InviteStatus) ([]domain.JobQuotationInvite, error) {
	if status != nil && !status.Valid() {
		return nil, domain.Invalid(fmt.Sprintf("unknown invite status %q", *status))
	}
	return m.Store.ListInvites(ctx, repository.InviteListParams{ProviderID: &providerID, Status: status})
}

// ListJobInvites returns every invite sent for a job.
func (m *InvitationManager) ListJobInvites(ctx context.Context, jobID uuid.UUID) ([]domain.JobQuotationInvite, error) {
	return m.Store.ListInvites(ctx, repository.InviteListParams{JobID: &jobID})
}

// customerOf resolves the job's customer from its criteria, if registered.
func (m *InvitationManager) customerOf(ctx context.Context, tx repository.Reader, jobID uuid.UUID) *uuid.UUID {
	c, err := tx.GetCriteria(ctx, jobID)
	if err != nil {
		return nil
	}
	return optionalID(c.CustomerID)
}

func (m *InvitationManager) staleQuotation(ctx context.Context, tx repository.Reader, id uuid.UUID, to domain.QuotationStatus) error {
	current, err := tx.GetQuotation(ctx, id)
	if err != nil {
		return err
	}
	return domain.InvalidTransition("quotation", string(current.Status), string(to), current)
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
