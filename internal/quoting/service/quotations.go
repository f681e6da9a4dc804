package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace_quotes_backend/internal/directory"
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/platform/apperr"
	"marketplace_quotes_backend/platform/sanitize"

	"github.com/google/uuid"
)

// SubmitInput is a provider's new quotation.
type SubmitInput struct {
	JobID         uuid.UUID
	ProviderID    uuid.UUID
	ProviderEmail string
	InviteID      *uuid.UUID
	Details       domain.QuotationDetails
}

// QuoteLifecycle owns the quotation state machine:
// PENDING -> ACCEPTED | REJECTED | CANCELLED | EXPIRED, all terminal.
type QuoteLifecycle struct {
	Deps
	invites *InvitationManager
	jobs    directory.JobDirectory
}

// NewQuoteLifecycle wires the lifecycle. jobs may be nil, in which case job
// ownership is taken from registered criteria only.
func NewQuoteLifecycle(deps Deps, invites *InvitationManager, jobs directory.JobDirectory) *QuoteLifecycle {
	return &QuoteLifecycle{Deps: deps, invites: invites, jobs: jobs}
}

// Submit creates a PENDING quotation. With an invite it also moves the
// invite to RESPONDED; the QUOTE_SUBMITTED event records both changes.
func (l *QuoteLifecycle) Submit(ctx context.Context, in SubmitInput) (domain.Quotation, error) {
	if in.JobID == uuid.Nil || in.ProviderID == uuid.Nil {
		return domain.Quotation{}, domain.Invalid("jobId and providerId are required")
	}
	details := cleanDetails(in.Details)
	if err := l.validateDetails(details); err != nil {
		return domain.Quotation{}, err
	}
	customerID, err := l.resolveCustomer(ctx, in.JobID)
	if err != nil {
		return domain.Quotation{}, err
	}

	var q domain.Quotation
	var log transitions
	err = l.Store.WithinJob(ctx, in.JobID, func(tx repository.Tx) error {
		log = nil
		now := l.now()
		q = domain.Quotation{
			ID:               uuid.New(),
			JobID:            in.JobID,
			ProviderID:       in.ProviderID,
			ProviderEmail:    in.ProviderEmail,
			CustomerID:       customerID,
			QuotationDetails: details,
			Status:           domain.QuotationStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		pending := domain.QuotationStatusPending
		existing, err := tx.ListQuotations(ctx, repository.QuotationListParams{
			JobID: &in.JobID, ProviderID: &in.ProviderID, Status: &pending, Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.DuplicatePendingQuote(in.JobID, in.ProviderID)
		}
		accepted, err := acceptedOnJob(ctx, tx, in.JobID)
		if err != nil {
			return err
		}
		if accepted != nil {
			return domain.JobAlreadyAccepted(in.JobID, *accepted)
		}

		payload := statusPayload("", string(domain.QuotationStatusPending))
		payload[domain.PayloadPrice] = details.Price

		if in.InviteID != nil {
			inv, err := tx.GetInvite(ctx, *in.InviteID)
			if err != nil {
				return err
			}
			if inv.JobID != in.JobID || inv.ProviderID != in.ProviderID {
				return domain.Invalid("invite does not belong to this job and provider")
			}
			responded, err := l.invites.respondTx(ctx, tx, inv, q.ID, now)
			if err != nil {
				return err
			}
			q.InviteID = &responded.ID
			payload[domain.PayloadInviteOldStatus] = string(domain.InviteStatusInvited)
			payload[domain.PayloadInviteNewStatus] = string(domain.InviteStatusResponded)
			payload[domain.PayloadInvitedAt] = stamp(responded.InvitedAt)
			log.add("invite", responded.ID, string(domain.InviteStatusInvited), string(domain.InviteStatusResponded))
		}

		if err := tx.InsertQuotation(ctx, q); err != nil {
			return err
		}
		if err := l.Events.Append(ctx, tx, quotationEvent(domain.EventQuoteSubmitted, q, now, payload)); err != nil {
			return err
		}
		log.add("quotation", q.ID, "", string(q.Status))
		return nil
	})
	if err != nil {
		return domain.Quotation{}, err
	}
	log.flush(l.Log.WithContext(ctx))
	return q, nil
}

// Update replaces the terms of a PENDING quotation owned by providerID.
func (l *QuoteLifecycle) Update(ctx context.Context, quoteID, providerID uuid.UUID, details domain.QuotationDetails) (domain.Quotation, error) {
	details = cleanDetails(details)
	if err := l.validateDetails(details); err != nil {
		return domain.Quotation{}, err
	}

	q, err := l.Store.GetQuotation(ctx, quoteID)
	if err != nil {
		return domain.Quotation{}, err
	}

	err = l.Store.WithinJob(ctx, q.JobID, func(tx repository.Tx) error {
		current, err := tx.GetQuotation(ctx, quoteID)
		if err != nil {
			return err
		}
		if current.ProviderID != providerID {
			return apperr.Forbidden("only the submitting provider may update this quotation")
		}
		if current.Status != domain.QuotationStatusPending {
			return notPending(current, "updated")
		}
		now := l.now()
		if current.IsStale(now) {
			return lapsed(current)
		}

		next := current
		next.QuotationDetails = details
		next.UpdatedAt = now
		ok, err := tx.UpdateQuotation(ctx, next, domain.QuotationStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return l.invites.staleQuotation(ctx, tx, quoteID, domain.QuotationStatusPending)
		}

		payload := statusPayload(string(current.Status), string(next.Status))
		payload[domain.PayloadPrice] = details.Price
		payload[domain.PayloadChangedFields] = changedFields(current.QuotationDetails, details)
		if err := l.Events.Append(ctx, tx, quotationEvent(domain.EventQuoteUpdated, next, now, payload)); err != nil {
			return err
		}
		q = next
		return nil
	})
	if err != nil {
		return domain.Quotation{}, err
	}
	return q, nil
}

// Withdraw cancels a PENDING quotation on behalf of the submitting provider.
func (l *QuoteLifecycle) Withdraw(ctx context.Context, quoteID, providerID uuid.UUID) (domain.Quotation, error) {
	return l.decide(ctx, quoteID, domain.QuotationStatusCancelled, func(_ context.Context, q domain.Quotation) error {
		if q.ProviderID != providerID {
			return apperr.Forbidden("only the submitting provider may withdraw this quotation")
		}
		return nil
	}, nil)
}

// Accept marks a PENDING quotation ACCEPTED for the job's customer and
// rejects every other PENDING quotation on the job in the same transaction,
// each with its own QUOTE_REJECTED event.
func (l *QuoteLifecycle) Accept(ctx context.Context, quoteID, customerID uuid.UUID) (domain.Quotation, error) {
	return l.decide(ctx, quoteID, domain.QuotationStatusAccepted, l.ownedBy(customerID), l.rejectSiblings)
}

// Reject marks a PENDING quotation REJECTED for the job's customer.
func (l *QuoteLifecycle) Reject(ctx context.Context, quoteID, customerID uuid.UUID) (domain.Quotation, error) {
	return l.decide(ctx, quoteID, domain.QuotationStatusRejected, l.ownedBy(customerID), nil)
}

type afterDecision func(ctx context.Context, tx repository.Tx, decided domain.Quotation, now time.Time, log *transitions) error

func (l *QuoteLifecycle) decide(ctx context.Context, quoteID uuid.UUID, next domain.QuotationStatus, authorize func(context.Context, domain.Quotation) error, after afterDecision) (domain.Quotation, error) {
	q, err := l.Store.GetQuotation(ctx, quoteID)
	if err != nil {
		return domain.Quotation{}, err
	}
	if err := authorize(ctx, q); err != nil {
		return domain.Quotation{}, err
	}

	var log transitions
	err = l.Store.WithinJob(ctx, q.JobID, func(tx repository.Tx) error {
		log = nil
		current, err := tx.GetQuotation(ctx, quoteID)
		if err != nil {
			return err
		}
		now := l.now()
		if !current.Status.CanTransitionTo(next) {
			return domain.InvalidTransition("quotation", string(current.Status), string(next), current)
		}
		if next != domain.QuotationStatusCancelled && current.IsStale(now) {
			return lapsed(current)
		}
		if next == domain.QuotationStatusAccepted {
			accepted, err := acceptedOnJob(ctx, tx, current.JobID)
			if err != nil {
				return err
			}
			if accepted != nil {
				return domain.JobAlreadyAccepted(current.JobID, current)
			}
		}

		decided := current
		decided.Decide(next, now)
		ok, err := tx.UpdateQuotation(ctx, decided, domain.QuotationStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return l.invites.staleQuotation(ctx, tx, quoteID, next)
		}
		payload := statusPayload(string(current.Status), string(next))
		if err := l.Events.Append(ctx, tx, quotationEvent(domain.QuotationEventFor(next), decided, now, payload)); err != nil {
			return err
		}
		log.add("quotation", decided.ID, string(current.Status), string(next))

		if after != nil {
			if err := after(ctx, tx, decided, now, &log); err != nil {
				return err
			}
		}
		q = decided
		return nil
	})
	if err != nil {
		return domain.Quotation{}, err
	}
	log.flush(l.Log.WithContext(ctx))
	return q, nil
}

func (l *QuoteLifecycle) rejectSiblings(ctx context.Context, tx repository.Tx, accepted domain.Quotation, now time.Time, log *transitions) error {
	pending := domain.QuotationStatusPending
	siblings, err := tx.ListQuotations(ctx, repository.QuotationListParams{JobID: &accepted.JobID, Status: &pending})
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID == accepted.ID {
			continue
		}
		rejected := s
		rejected.Decide(domain.QuotationStatusRejected, now)
		ok, err := tx.UpdateQuotation(ctx, rejected, domain.QuotationStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		payload := statusPayload(string(s.Status), string(rejected.Status))
		payload[domain.PayloadReason] = domain.ReasonSiblingAccepted
		payload[domain.PayloadAcceptedQuoteID] = accepted.ID.String()
		if err := l.Events.Append(ctx, tx, quotationEvent(domain.EventQuoteRejected, rejected, now, payload)); err != nil {
			return err
		}
		log.add("quotation", rejected.ID, string(s.Status), string(rejected.Status))
	}
	return nil
}

// ExpireStale moves PENDING quotations whose valid_until has passed to
// EXPIRED. Like SweepExpired it re-checks each row under the job lock.
func (l *QuoteLifecycle) ExpireStale(ctx context.Context, now time.Time) ([]domain.Quotation, error) {
	expired := make([]domain.Quotation, 0)
	var errs []error
	batch := l.sweepBatch()

	for {
		stale, err := l.Store.ListStaleQuotations(ctx, now, batch)
		if err != nil {
			return expired, fmt.Errorf("list stale quotations: %w", err)
		}

		progressed := 0
		for _, candidate := range stale {
			q, changed, err := l.expire(ctx, candidate, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("expire quotation %s: %w", candidate.ID, err))
				continue
			}
			if changed {
				expired = append(expired, q)
				progressed++
			}
		}
		if len(stale) < batch || progressed == 0 {
			break
		}
	}

	l.Log.SweepCompleted("quotations", len(expired))
	return expired, errors.Join(errs...)
}

func (l *QuoteLifecycle) expire(ctx context.Context, candidate domain.Quotation, now time.Time) (domain.Quotation, bool, error) {
	var out domain.Quotation
	changed := false

	err := l.Store.WithinJob(ctx, candidate.JobID, func(tx repository.Tx) error {
		changed = false
		q, err := tx.GetQuotation(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if !q.IsStale(now) {
			return nil
		}
		next := q
		next.Decide(domain.QuotationStatusExpired, now)
		ok, err := tx.UpdateQuotation(ctx, next, domain.QuotationStatusPending)
		if err != nil || !ok {
			return err
		}
		payload := statusPayload(string(q.Status), string(next.Status))
		if err := l.Events.Append(ctx, tx, quotationEvent(domain.EventQuoteExpired, next, now, payload)); err != nil {
			return err
		}
		out = next
		changed = true
		return nil
	})
	if err != nil {
		return domain.Quotation{}, false, err
	}
	if changed {
		l.Log.WithContext(ctx).Transition("quotation", out.ID.String(), string(domain.QuotationStatusPending), string(out.Status))
	}
	return out, changed, nil
}

// GetQuotation returns one quotation.
func (l *QuoteLifecycle) GetQuotation(ctx context.Context, id uuid.UUID) (domain.Quotation, error) {
	return l.Store.GetQuotation(ctx, id)
}

// ListJobQuotations returns the quotations on a job for the customer who
// owns it.
func (l *QuoteLifecycle) ListJobQuotations(ctx context.Context, jobID, customerID uuid.UUID) ([]domain.Quotation, error) {
	if err := l.AuthorizeJob(ctx, jobID, customerID); err != nil {
		return nil, err
	}
	return l.ListQuotationsForJob(ctx, jobID)
}

// AuthorizeJob fails with Forbidden unless customerID owns the job.
func (l *QuoteLifecycle) AuthorizeJob(ctx context.Context, jobID, customerID uuid.UUID) error {
	owner, err := l.resolveCustomer(ctx, jobID)
	if err != nil {
		return err
	}
	if owner == nil || *owner != customerID {
		return apperr.Forbidden("job belongs to another customer")
	}
	return nil
}

// ListQuotationsForJob returns the quotations on a job without an ownership
// check. Admin paths use it.
func (l *QuoteLifecycle) ListQuotationsForJob(ctx context.Context, jobID uuid.UUID) ([]domain.Quotation, error) {
	return l.Store.ListQuotations(ctx, repository.QuotationListParams{JobID: &jobID})
}

// ListProviderQuotations returns the provider's quotations, oldest first.
func (l *QuoteLifecycle) ListProviderQuotations(ctx context.Context, providerID uuid.UUID, status *domain.QuotationStatus) ([]domain.Quotation, error) {
	if status != nil && !status.Valid() {
		return nil, domain.Invalid(fmt.Sprintf("unknown quotation status %q", *status))
	}
	return l.Store.ListQuotations(ctx, repository.QuotationListParams{ProviderID: &providerID, Status: status})
}

// CanView reports whether actorID may read q: its provider or the job's
// customer.
func (l *QuoteLifecycle) CanView(ctx context.Context, q domain.Quotation, actorID uuid.UUID) bool {
	if q.ProviderID == actorID {
		return true
	}
	return l.ownedBy(actorID)(ctx, q) == nil
}

func (l *QuoteLifecycle) ownedBy(customerID uuid.UUID) func(context.Context, domain.Quotation) error {
	return func(ctx context.Context, q domain.Quotation) error {
		owner := q.CustomerID
		if owner == nil {
			resolved, err := l.resolveCustomer(ctx, q.JobID)
			if err != nil {
				return err
			}
			owner = resolved
		}
		if owner == nil || *owner != customerID {
			return apperr.Forbidden("only the job's customer may decide on this quotation")
		}
		return nil
	}
}

// resolveCustomer finds the job owner from criteria, then from the job
// directory. It returns nil when neither knows the job.
func (l *QuoteLifecycle) resolveCustomer(ctx context.Context, jobID uuid.UUID) (*uuid.UUID, error) {
	c, err := l.Store.GetCriteria(ctx, jobID)
	if err == nil {
		if id := optionalID(c.CustomerID); id != nil {
			return id, nil
		}
	} else if !errors.Is(err, domain.ErrNoCriteria) {
		return nil, err
	}

	if l.jobs == nil {
		return nil, nil
	}
	job, err := l.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		l.Log.WithContext(ctx).Warn("job owner lookup failed", "job_id", jobID, "error", err)
		return nil, nil
	}
	return optionalID(job.CustomerID), nil
}

func (l *QuoteLifecycle) validateDetails(d domain.QuotationDetails) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ValidUntil != nil && !d.ValidUntil.After(l.now()) {
		return domain.Invalid("validUntil must be in the future")
	}
	return nil
}

func notPending(q domain.Quotation, action string) error {
	return apperr.Wrap(apperr.KindConflict,
		fmt.Sprintf("quotation %s is %s and can no longer be %s", q.ID, q.Status, action), domain.ErrInvalidTransition).
		WithCode(domain.CodeInvalidTransition).
		WithDetails(q)
}

func lapsed(q domain.Quotation) error {
	return apperr.Wrap(apperr.KindConflict,
		fmt.Sprintf("quotation %s expired at %s", q.ID, stamp(*q.ValidUntil)), domain.ErrInvalidTransition).
		WithCode(domain.CodeInvalidTransition).
		WithDetails(q)
}

// acceptedOnJob returns the job's accepted quotation, if any.
func acceptedOnJob(ctx context.Context, tx repository.Tx, jobID uuid.UUID) (*domain.Quotation, error) {
	accepted := domain.QuotationStatusAccepted
	found, err := tx.ListQuotations(ctx, repository.QuotationListParams{JobID: &jobID, Status: &accepted, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func cleanDetails(d domain.QuotationDetails) domain.QuotationDetails {
	d.EstimatedTime = sanitize.OptionalText(d.EstimatedTime)
	d.Message = sanitize.OptionalText(d.Message)
	d.Warranty = sanitize.OptionalText(d.Warranty)
	d.CustomerNotes = sanitize.OptionalText(d.CustomerNotes)
	if d.ValidUntil != nil {
		t := d.ValidUntil.UTC()
		d.ValidUntil = &t
	}
	if d.ProposedStart != nil {
		t := d.ProposedStart.UTC()
		d.ProposedStart = &t
	}
	return d
}

func changedFields(before, after domain.QuotationDetails) []string {
	out := make([]string, 0)
	if before.Price != after.Price {
		out = append(out, "price")
	}
	if !equalPtr(before.EstimatedTime, after.EstimatedTime) {
		out = append(out, "estimatedTime")
	}
	if !equalPtr(before.Message, after.Message) {
		out = append(out, "message")
	}
	if !equalTime(before.ProposedStart, after.ProposedStart) {
		out = append(out, "proposedStart")
	}
	if before.IncludesTools != after.IncludesTools {
		out = append(out, "includesTools")
	}
	if before.EcoFriendly != after.EcoFriendly {
		out = append(out, "ecoFriendly")
	}
	if !equalTime(before.ValidUntil, after.ValidUntil) {
		out = append(out, "validUntil")
	}
	if !equalPtr(before.Warranty, after.Warranty) {
		out = append(out, "warranty")
	}
	if !equalPtr(before.MaterialsCost, after.MaterialsCost) {
		out = append(out, "materialsCost")
	}
	if !equalPtr(before.LaborCost, after.LaborCost) {
		out = append(out, "laborCost")
	}
	if !equalPtr(before.CustomerNotes, after.CustomerNotes) {
		out = append(out, "customerNotes")
	}
	return out
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
