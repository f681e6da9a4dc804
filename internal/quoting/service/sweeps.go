package service

import (
	"context"
	"errors"
	"time"

	"marketplace_quotes_backend/platform/clock"
)

// SweepResult counts the rows one sweep pass transitioned.
type SweepResult struct {
	Invites    int `json:"invites"`
	Quotations int `json:"quotations"`
}

// Sweeper runs both time-based sweeps at the same instant.
type Sweeper struct {
	invites *InvitationManager
	quotes  *QuoteLifecycle
	clock   clock.Clock
}

func NewSweeper(invites *InvitationManager, quotes *QuoteLifecycle, c clock.Clock) *Sweeper {
	return &Sweeper{invites: invites, quotes: quotes, clock: c}
}

// SweepInvites lapses overdue invites as of now.
func (s *Sweeper) SweepInvites(ctx context.Context) (int, error) {
	swept, err := s.invites.SweepExpired(ctx, s.clock.Now())
	return len(swept), err
}

// SweepQuotations expires stale quotations as of now.
func (s *Sweeper) SweepQuotations(ctx context.Context) (int, error) {
	expired, err := s.quotes.ExpireStale(ctx, s.clock.Now())
	return len(expired), err
}

// RunOnce runs both sweeps. A failure in one does not skip the other.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	return s.RunAt(ctx, s.clock.Now())
}

// RunAt runs both sweeps as of now.
func (s *Sweeper) RunAt(ctx context.Context, now time.Time) (SweepResult, error) {
	invites, invErr := s.invites.SweepExpired(ctx, now)
	quotes, quoteErr := s.quotes.ExpireStale(ctx, now)
	return SweepResult{Invites: len(invites), Quotations: len(quotes)}, errors.Join(invErr, quoteErr)
}
