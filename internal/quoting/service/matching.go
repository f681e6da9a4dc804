package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace_quotes_backend/internal/directory"
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/eligibility"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/platform/apperr"

	"github.com/google/uuid"
)

// RetryScheduler queues a later matching attempt for a job whose provider
// lookup failed.
type RetryScheduler interface {
	EnqueueMatchRetry(ctx context.Context, jobID uuid.UUID, delay time.Duration) error
}

// MatchResult reports the outcome of one matching run.
type MatchResult struct {
	JobID    uuid.UUID
	Invites  []domain.JobQuotationInvite
	Eligible int
	// AlreadyInvited counts eligible providers skipped because they hold an
	// invite for the job from an earlier run.
	AlreadyInvited int
	// Degraded is set when the provider lookup failed. No invites were sent.
	Degraded       bool
	RetryScheduled bool
}

// Matcher turns a job's criteria into invites.
type Matcher struct {
	Deps
	invites    *InvitationManager
	jobs       directory.JobDirectory
	providers  directory.ProviderDirectory
	retries    RetryScheduler
	retryDelay time.Duration
}

// MatcherOptions configures the optional parts of a Matcher.
type MatcherOptions struct {
	Jobs       directory.JobDirectory
	Retries    RetryScheduler
	RetryDelay time.Duration
}

func NewMatcher(deps Deps, invites *InvitationManager, providers directory.ProviderDirectory, opts MatcherOptions) *Matcher {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	return &Matcher{
		Deps:       deps,
		invites:    invites,
		jobs:       opts.Jobs,
		providers:  providers,
		retries:    opts.Retries,
		retryDelay: delay,
	}
}

// RegisterCriteria stores a job's criteria. Criteria are immutable; a second
// registration for the same job fails with CriteriaExists. With a job
// directory configured the owner comes from the directory: an empty
// CustomerID is filled in and a different one is Forbidden.
func (m *Matcher) RegisterCriteria(ctx context.Context, c domain.JobEligibilityCriteria) (domain.JobEligibilityCriteria, error) {
	c.RequiredCategory = strings.TrimSpace(c.RequiredCategory)
	if err := c.Validate(); err != nil {
		return domain.JobEligibilityCriteria{}, err
	}
	if m.jobs != nil {
		job, err := m.jobs.GetJob(ctx, c.JobID)
		if err != nil {
			return domain.JobEligibilityCriteria{}, err
		}
		switch {
		case c.CustomerID == uuid.Nil:
			c.CustomerID = job.CustomerID
		case c.CustomerID != job.CustomerID:
			return domain.JobEligibilityCriteria{}, apperr.Forbidden("job belongs to another customer")
		}
	}
	c.CreatedAt = m.now()

	err := m.Store.WithinJob(ctx, c.JobID, func(tx repository.Tx) error {
		return tx.InsertCriteria(ctx, c)
	})
	if err != nil {
		return domain.JobEligibilityCriteria{}, err
	}
	m.Log.WithContext(ctx).Info("eligibility criteria registered",
		"job_id", c.JobID, "category", c.RequiredCategory, "max_providers", c.MaxProvidersInvited)
	return c, nil
}

// GetCriteria returns a job's registered criteria.
func (m *Matcher) GetCriteria(ctx context.Context, jobID uuid.UUID) (domain.JobEligibilityCriteria, error) {
	return m.Store.GetCriteria(ctx, jobID)
}

// MatchJob fetches candidates, evaluates them and invites the best ones.
//
// Providers already invited to the job are skipped and count toward
// max_providers_invited, so repeated runs never exceed it. A failed provider
// lookup does not fail the call: the result is marked Degraded, nobody is
// invited and a retry is queued when a RetryScheduler is configured.
func (m *Matcher) MatchJob(ctx context.Context, jobID uuid.UUID) (MatchResult, error) {
	result := MatchResult{JobID: jobID, Invites: []domain.JobQuotationInvite{}}

	criteria, err := m.Store.GetCriteria(ctx, jobID)
	if err != nil {
		return result, err
	}

	candidates, err := m.providers.FindCandidates(ctx, criteria.RequiredCategory, criteria.Anchor, criteria.MaxDistanceKm)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result, err
		}
		m.Log.WithContext(ctx).Warn("matching degraded: provider lookup failed", "job_id", jobID, "error", err)
		result.Degraded = true
		result.RetryScheduled = m.scheduleRetry(ctx, jobID)
		return result, nil
	}

	var log transitions
	err = m.Store.WithinJob(ctx, jobID, func(tx repository.Tx) error {
		log = nil
		existing, err := tx.ListInvites(ctx, repository.InviteListParams{JobID: &jobID})
		if err != nil {
			return err
		}
		invited := make(map[uuid.UUID]struct{}, len(existing))
		for _, inv := range existing {
			invited[inv.ProviderID] = struct{}{}
		}

		remaining := criteria
		remaining.MaxProvidersInvited = criteria.MaxProvidersInvited - len(existing)
		if remaining.MaxProvidersInvited < 1 {
			result.AlreadyInvited = len(existing)
			return nil
		}

		fresh := make([]domain.ProviderProfile, 0, len(candidates))
		for _, p := range candidates {
			if _, ok := invited[p.ID]; ok {
				if eligibility.Qualifies(criteria, p) {
					result.AlreadyInvited++
				}
				continue
			}
			fresh = append(fresh, p)
		}

		eligible, err := eligibility.Evaluate(&remaining, fresh)
		if err != nil {
			return err
		}
		result.Eligible = len(eligible)

		created, err := m.invites.createInvitesTx(ctx, tx, criteria, eligible, m.now(), &log)
		if err != nil {
			return err
		}
		result.Invites = created
		return nil
	})
	if err != nil {
		return MatchResult{JobID: jobID, Invites: []domain.JobQuotationInvite{}}, err
	}

	log.flush(m.Log.WithContext(ctx))
	m.Log.WithContext(ctx).Info("job matched", "job_id", jobID, "invited", len(result.Invites), "already_invited", result.AlreadyInvited)
	return result, nil
}

func (m *Matcher) scheduleRetry(ctx context.Context, jobID uuid.UUID) bool {
	if m.retries == nil {
		return false
	}
	if err := m.retries.EnqueueMatchRetry(ctx, jobID, m.retryDelay); err != nil {
		m.Log.WithContext(ctx).Error("failed to schedule match retry", "job_id", jobID, "error", err)
		return false
	}
	return true
}
