package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace_quotes_backend/internal/directory"
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/eventlog"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/platform/apperr"
	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store    *repository.Memory
	clock    *clock.Fake
	dir      *directory.Static
	retries  *fakeRetries
	invites  *InvitationManager
	quotes   *QuoteLifecycle
	matcher  *Matcher
	sweeper  *Sweeper
	log      *eventlog.Log
	customer uuid.UUID
	jobID    uuid.UUID
	criteria domain.JobEligibilityCriteria
}

type fakeRetries struct {
	jobs  []uuid.UUID
	delay time.Duration
	err   error
}

func (f *fakeRetries) EnqueueMatchRetry(_ context.Context, jobID uuid.UUID, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, jobID)
	f.delay = delay
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemory()
	fake := clock.NewFake(t0)
	log := eventlog.New(store, fake)
	deps := Deps{Store: store, Events: log, Clock: fake, Log: logger.Discard()}
	dir := directory.NewStatic()
	retries := &fakeRetries{}

	invites := NewInvitationManager(deps)
	quotes := NewQuoteLifecycle(deps, invites, dir)
	matcher := NewMatcher(deps, invites, dir, MatcherOptions{Jobs: dir, Retries: retries, RetryDelay: time.Minute})

	f := &fixture{
		store:    store,
		clock:    fake,
		dir:      dir,
		retries:  retries,
		invites:  invites,
		quotes:   quotes,
		matcher:  matcher,
		sweeper:  NewSweeper(invites, quotes, fake),
		log:      log,
		customer: uuid.New(),
		jobID:    uuid.New(),
	}
	f.criteria = domain.JobEligibilityCriteria{
		JobID:               f.jobID,
		CustomerID:          f.customer,
		MaxDistanceKm:       10,
		RequiredCategory:    "Plumbing",
		MaxProvidersInvited: 5,
		InviteExpiresHours:  24,
	}
	dir.PutJob(directory.Job{ID: f.jobID, CustomerID: f.customer, Category: "Plumbing"})
	if _, err := matcher.RegisterCriteria(context.Background(), f.criteria); err != nil {
		t.Fatalf("register criteria: %v", err)
	}
	return f
}

func provider(category string, dist, rating float64) domain.ProviderProfile {
	return domain.ProviderProfile{ID: uuid.New(), Email: "p@example.com", Category: category, DistanceKm: dist, Rating: rating, Available: true}
}

func (f *fixture) invite(t *testing.T, providers ...domain.ProviderProfile) []domain.JobQuotationInvite {
	t.Helper()
	invites, err := f.invites.CreateInvites(context.Background(), f.criteria, providers)
	if err != nil {
		t.Fatalf("create invites: %v", err)
	}
	return invites
}

func (f *fixture) submit(t *testing.T, providerID uuid.UUID, inviteID *uuid.UUID, price int64) domain.Quotation {
	t.Helper()
	q, err := f.quotes.Submit(context.Background(), SubmitInput{
		JobID: f.jobID, ProviderID: providerID, InviteID: inviteID,
		Details: domain.QuotationDetails{Price: price},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return q
}

func (f *fixture) events(t *testing.T) []domain.QuoteEvent {
	t.Helper()
	events, err := f.log.Query(context.Background(), domain.EventFilter{JobID: &f.jobID})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	return events
}

func eventTypes(events []domain.QuoteEvent) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func assertTypes(t *testing.T, got []domain.QuoteEvent, want ...domain.EventType) {
	t.Helper()
	types := eventTypes(got)
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestCreateInvitesSetsExpiryAndEmitsEvents(t *testing.T) {
	f := newFixture(t)
	invites := f.invite(t, provider("Plumbing", 2, 4), provider("Plumbing", 3, 4))

	for _, inv := range invites {
		if inv.Status != domain.InviteStatusInvited || inv.Responded {
			t.Fatalf("unexpected new invite %+v", inv)
		}
		if !inv.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
			t.Fatalf("expected expiry 24h after %v, got %v", t0, inv.ExpiresAt)
		}
	}
	events := f.events(t)
	assertTypes(t, events, domain.EventQuoteInvited, domain.EventQuoteInvited)
	if events[0].CustomerID == nil || *events[0].CustomerID != f.customer {
		t.Fatalf("expected customer on invite event, got %v", events[0].CustomerID)
	}
}

func TestCreateInvitesRejectsDuplicatesWholesale(t *testing.T) {
	f := newFixture(t)
	existing := provider("Plumbing", 2, 4)
	f.invite(t, existing)

	_, err := f.invites.CreateInvites(context.Background(), f.criteria, []domain.ProviderProfile{provider("Plumbing", 1, 5), existing})
	if !errors.Is(err, domain.ErrDuplicateInvite) {
		t.Fatalf("expected duplicate invite, got %v", err)
	}
	invites, _ := f.invites.ListJobInvites(context.Background(), f.jobID)
	if len(invites) != 1 {
		t.Fatalf("expected the failed batch to leave 1 invite, got %d", len(invites))
	}
	if len(f.events(t)) != 1 {
		t.Fatalf("expected no events from the failed batch")
	}
}

func TestSweepExpiresUnansweredInviteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite(t, provider("Plumbing", 2, 4))

	swept, err := f.invites.SweepExpired(ctx, t0.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(swept) != 1 || swept[0].Status != domain.InviteStatusExpired {
		t.Fatalf("expected one EXPIRED invite, got %+v", swept)
	}
	assertTypes(t, f.events(t), domain.EventQuoteInvited, domain.EventQuoteExpired)
	if expired := f.events(t)[1]; !expired.IsInviteScoped() {
		t.Fatalf("expected an invite-scoped expiry event, got %+v", expired)
	}

	again, err := f.invites.SweepExpired(ctx, t0.Add(26*time.Hour))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no changes on second sweep, got %d", len(again))
	}
	if len(f.events(t)) != 2 {
		t.Fatalf("expected no new events on second sweep, got %v", eventTypes(f.events(t)))
	}
}

func TestSweepLeavesOpenInvitesAlone(t *testing.T) {
	f := newFixture(t)
	f.invite(t, provider("Plumbing", 2, 4))

	swept, err := f.invites.SweepExpired(context.Background(), t0.Add(23*time.Hour))
	if err != nil || len(swept) != 0 {
		t.Fatalf("expected nothing swept before expiry, got %d (%v)", len(swept), err)
	}
}

func TestSweepMarksViewedInviteIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := provider("Plumbing", 2, 4)
	inv := f.invite(t, p)[0]

	f.clock.Advance(time.Hour)
	viewed, err := f.invites.MarkViewed(ctx, inv.ID, p.ID)
	if err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if viewed.ViewedAt == nil || !viewed.ViewedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected viewed_at to be set, got %v", viewed.ViewedAt)
	}

	swept, err := f.invites.SweepExpired(ctx, t0.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(swept) != 1 || swept[0].Status != domain.InviteStatusIgnored {
		t.Fatalf("expected IGNORED, got %+v", swept)
	}
	assertTypes(t, f.events(t), domain.EventQuoteInvited, domain.EventProviderIgnored)
}

func TestMarkViewedRequiresOwner(t *testing.T) {
	f := newFixture(t)
	inv := f.invite(t, provider("Plumbing", 2, 4))[0]

	_, err := f.invites.MarkViewed(context.Background(), inv.ID, uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for another provider, got %v", err)
	}
}

func TestRoundTripProducesThreeEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := provider("Plumbing", 2, 4)
	inv := f.invite(t, p)[0]

	f.clock.Advance(2 * time.Hour)
	q := f.submit(t, p.ID, &inv.ID, 200)

	stored, _ := f.invites.GetInvite(ctx, inv.ID)
	if stored.Status != domain.InviteStatusResponded || !stored.Responded || stored.ResponseAt == nil {
		t.Fatalf("expected RESPONDED invite, got %+v", stored)
	}
	if stored.QuotationID == nil || *stored.QuotationID != q.ID {
		t.Fatalf("expected invite linked to quotation")
	}

	f.clock.Advance(time.Hour)
	accepted, err := f.quotes.Accept(ctx, q.ID, f.customer)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.QuotationStatusAccepted || accepted.AcceptedAt == nil {
		t.Fatalf("unexpected accepted quotation %+v", accepted)
	}

	events := f.events(t)
	assertTypes(t, events, domain.EventQuoteInvited, domain.EventQuoteSubmitted, domain.EventQuoteAccepted)
	for _, e := range events {
		if e.ProviderID != p.ID || e.InviteID == nil || *e.InviteID != inv.ID {
			t.Fatalf("expected every event to reference the provider and invite, got %+v", e)
		}
	}
	if got := events[2].Payload.String(domain.PayloadOldStatus); got != "PENDING" {
		t.Fatalf("expected old_status PENDING, got %q", got)
	}
	if got := events[2].Payload.String(domain.PayloadNewStatus); got != "ACCEPTED" {
		t.Fatalf("expected new_status ACCEPTED, got %q", got)
	}
}

func TestAcceptCascadeRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x, y := provider("Plumbing", 2, 4), provider("Plumbing", 3, 4)
	qx := f.submit(t, x.ID, nil, 200)
	qy := f.submit(t, y.ID, nil, 250)

	if _, err := f.quotes.Accept(ctx, qx.ID, f.customer); err != nil {
		t.Fatalf("accept: %v", err)
	}

	gotY, _ := f.quotes.GetQuotation(ctx, qy.ID)
	if gotY.Status != domain.QuotationStatusRejected || gotY.RejectedAt == nil {
		t.Fatalf("expected sibling rejected, got %+v", gotY)
	}

	events := f.events(t)
	assertTypes(t, events, domain.EventQuoteSubmitted, domain.EventQuoteSubmitted, domain.EventQuoteAccepted, domain.EventQuoteRejected)
	rejection := events[3]
	if *rejection.QuoteID != qy.ID || rejection.Payload.String(domain.PayloadReason) != domain.ReasonSiblingAccepted {
		t.Fatalf("unexpected cascade event %+v", rejection)
	}
	if rejection.Payload.String(domain.PayloadAcceptedQuoteID) != qx.ID.String() {
		t.Fatalf("expected accepted quote id on cascade event")
	}

	if _, err := f.quotes.Accept(ctx, qy.ID, f.customer); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second acceptance to fail, got %v", err)
	}
}

func TestConcurrentDecisionsLeaveOneWinner(t *testing.T) {
	tests := []struct {
		name string
		// run returns one decision per goroutine and the event types expected
		// after the single winning decision.
		run func(t *testing.T, f *fixture) ([]func() (domain.Quotation, error), int)
	}{
		{
			name: "sibling accepts",
			run: func(t *testing.T, f *fixture) ([]func() (domain.Quotation, error), int) {
				var calls []func() (domain.Quotation, error)
				for i := 0; i < 8; i++ {
					q := f.submit(t, uuid.New(), nil, int64(100+i))
					calls = append(calls, func() (domain.Quotation, error) {
						return f.quotes.Accept(context.Background(), q.ID, f.customer)
					})
				}
				// 8 submits, 1 accept, 7 cascade rejects
				return calls, 16
			},
		},
		{
			name: "withdraw against accept",
			run: func(t *testing.T, f *fixture) ([]func() (domain.Quotation, error), int) {
				p := uuid.New()
				q := f.submit(t, p, nil, 100)
				return []func() (domain.Quotation, error){
					func() (domain.Quotation, error) { return f.quotes.Accept(context.Background(), q.ID, f.customer) },
					func() (domain.Quotation, error) { return f.quotes.Withdraw(context.Background(), q.ID, p) },
				}, 2
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			calls, wantEvents := tt.run(t, f)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				winners []domain.Quotation
				losers  []error
			)
			for _, call := range calls {
				wg.Add(1)
				go func(call func() (domain.Quotation, error)) {
					defer wg.Done()
					q, err := call()
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						losers = append(losers, err)
						return
					}
					winners = append(winners, q)
				}(call)
			}
			wg.Wait()

			if len(winners) != 1 {
				t.Fatalf("expected exactly one winner, got %d (errors %v)", len(winners), losers)
			}
			for _, err := range losers {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Fatalf("expected losers to see an invalid transition, got %v", err)
				}
			}
			if got := len(f.events(t)); got != wantEvents {
				t.Fatalf("expected %d events, got %d", wantEvents, got)
			}

			stored, err := f.quotes.GetQuotation(context.Background(), winners[0].ID)
			if err != nil || stored.Status != winners[0].Status {
				t.Fatalf("expected stored status %s, got %+v (%v)", winners[0].Status, stored, err)
			}
			accepted := domain.QuotationStatusAccepted
			all, _ := f.store.ListQuotations(context.Background(), repository.QuotationListParams{JobID: &f.jobID, Status: &accepted})
			if winners[0].Status == domain.QuotationStatusAccepted && len(all) != 1 {
				t.Fatalf("expected one accepted quotation, got %d", len(all))
			}
		})
	}
}

func TestSubmitAfterAcceptanceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	winner := f.submit(t, uuid.New(), nil, 200)
	if _, err := f.quotes.Accept(ctx, winner.ID, f.customer); err != nil {
		t.Fatalf("accept: %v", err)
	}
	before := len(f.events(t))

	_, err := f.quotes.Submit(ctx, SubmitInput{JobID: f.jobID, ProviderID: uuid.New(), Details: domain.QuotationDetails{Price: 150}})
	appErr, ok := apperr.As(err)
	if !ok || !errors.Is(err, domain.ErrInvalidTransition) || appErr.Code != domain.CodeInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if !strings.Contains(appErr.Message, "already has an accepted quotation") {
		t.Fatalf("unexpected message %q", appErr.Message)
	}
	if current, ok := appErr.Details.(domain.Quotation); !ok || current.ID != winner.ID {
		t.Fatalf("expected accepted quotation in details, got %#v", appErr.Details)
	}
	if after := len(f.events(t)); after != before {
		t.Fatalf("expected no new events, got %d -> %d", before, after)
	}
}

func TestAcceptOnAwardedJobReportsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	winner := f.submit(t, uuid.New(), nil, 200)
	if _, err := f.quotes.Accept(ctx, winner.ID, f.customer); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// a pending row left over from before the job was awarded
	now := f.clock.Now()
	leftover := domain.Quotation{
		ID: uuid.New(), JobID: f.jobID, ProviderID: uuid.New(), CustomerID: &f.customer,
		QuotationDetails: domain.QuotationDetails{Price: 120},
		Status:           domain.QuotationStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	err := f.store.WithinJob(ctx, f.jobID, func(tx repository.Tx) error {
		return tx.InsertQuotation(ctx, leftover)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = f.quotes.Accept(ctx, leftover.ID, f.customer)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != domain.CodeInvalidTransition || !strings.Contains(appErr.Message, "already has an accepted quotation") {
		t.Fatalf("expected job already accepted conflict, got %v", err)
	}
}

func TestUpdateAfterValidUntilFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := uuid.New()
	validUntil := t0.Add(time.Hour)
	q, err := f.quotes.Submit(ctx, SubmitInput{JobID: f.jobID, ProviderID: p, Details: domain.QuotationDetails{Price: 100, ValidUntil: &validUntil}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	extended := t0.Add(48 * time.Hour)
	if _, err := f.quotes.Update(ctx, q.ID, p, domain.QuotationDetails{Price: 100, ValidUntil: &extended}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected lapsed quotation to refuse updates, got %v", err)
	}
	stored, _ := f.quotes.GetQuotation(ctx, q.ID)
	if !stored.ValidUntil.Equal(validUntil) {
		t.Fatalf("expected valid_until unchanged, got %v", stored.ValidUntil)
	}

	expired, err := f.quotes.ExpireStale(ctx, f.clock.Now())
	if err != nil || len(expired) != 1 {
		t.Fatalf("expected sweep to expire the quotation, got %d (%v)", len(expired), err)
	}
}

func TestTerminalQuotationsRejectFurtherChanges(t *testing.T) {
	ctx := context.Background()
	terminal := map[string]func(f *fixture, q domain.Quotation) error{
		"accepted": func(f *fixture, q domain.Quotation) error {
			_, err := f.quotes.Accept(ctx, q.ID, f.customer)
			return err
		},
		"rejected": func(f *fixture, q domain.Quotation) error {
			_, err := f.quotes.Reject(ctx, q.ID, f.customer)
			return err
		},
		"withdrawn": func(f *fixture, q domain.Quotation) error {
			_, err := f.quotes.Withdraw(ctx, q.ID, q.ProviderID)
			return err
		},
		"expired": func(f *fixture, q domain.Quotation) error {
			_, err := f.quotes.ExpireStale(ctx, t0.Add(48*time.Hour))
			return err
		},
	}

	for name, finish := range terminal {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			validUntil := t0.Add(24 * time.Hour)
			p := provider("Plumbing", 2, 4)
			q, err := f.quotes.Submit(ctx, SubmitInput{JobID: f.jobID, ProviderID: p.ID, Details: domain.QuotationDetails{Price: 100, ValidUntil: &validUntil}})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if err := finish(f, q); err != nil {
				t.Fatalf("finish: %v", err)
			}
			before := len(f.events(t))

			attempts := []error{
				func() error { _, err := f.quotes.Accept(ctx, q.ID, f.customer); return err }(),
				func() error { _, err := f.quotes.Reject(ctx, q.ID, f.customer); return err }(),
				func() error { _, err := f.quotes.Withdraw(ctx, q.ID, p.ID); return err }(),
				func() error {
					_, err := f.quotes.Update(ctx, q.ID, p.ID, domain.QuotationDetails{Price: 90})
					return err
				}(),
			}
			for i, err := range attempts {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Errorf("attempt %d: expected invalid transition, got %v", i, err)
				}
			}
			if after := len(f.events(t)); after != before {
				t.Fatalf("expected no new events, got %d -> %d", before, after)
			}
		})
	}
}

func TestInvalidTransitionCarriesCurrentState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.submit(t, uuid.New(), nil, 100)
	if _, err := f.quotes.Reject(ctx, q.ID, f.customer); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err := f.quotes.Accept(ctx, q.ID, f.customer)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindConflict || appErr.Code != domain.CodeInvalidTransition {
		t.Fatalf("expected conflict with code, got %v", err)
	}
	current, ok := appErr.Details.(domain.Quotation)
	if !ok || current.Status != domain.QuotationStatusRejected {
		t.Fatalf("expected current quotation in details, got %#v", appErr.Details)
	}
}

func TestSubmitRejectsSecondPendingQuote(t *testing.T) {
	f := newFixture(t)
	p := uuid.New()
	f.submit(t, p, nil, 100)

	_, err := f.quotes.Submit(context.Background(), SubmitInput{JobID: f.jobID, ProviderID: p, Details: domain.QuotationDetails{Price: 120}})
	if !errors.Is(err, domain.ErrDuplicatePendingQuote) {
		t.Fatalf("expected duplicate pending quote, got %v", err)
	}
}

func TestSubmitAfterWithdrawIsAllowed(t *testing.T) {
	f := newFixture(t)
	p := uuid.New()
	q := f.submit(t, p, nil, 100)
	if _, err := f.quotes.Withdraw(context.Background(), q.ID, p); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.submit(t, p, nil, 90)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	past := t0.Add(-time.Hour)
	negative := int64(-5)

	tests := []struct {
		name    string
		details domain.QuotationDetails
	}{
		{"negative price", domain.QuotationDetails{Price: -1}},
		{"negative labor", domain.QuotationDetails{Price: 1, LaborCost: &negative}},
		{"valid until in the past", domain.QuotationDetails{Price: 1, ValidUntil: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.quotes.Submit(context.Background(), SubmitInput{JobID: f.jobID, ProviderID: uuid.New(), Details: tt.details})
			if apperr.GetKind(err) != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(f.events(t)) != 0 {
		t.Fatal("expected no events after failed submissions")
	}
}

func TestSubmitOnExpiredInviteFails(t *testing.T) {
	f := newFixture(t)
	p := provider("Plumbing", 2, 4)
	inv := f.invite(t, p)[0]

	f.clock.Advance(25 * time.Hour)
	_, err := f.quotes.Submit(context.Background(), SubmitInput{JobID: f.jobID, ProviderID: p.ID, InviteID: &inv.ID, Details: domain.QuotationDetails{Price: 100}})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	quotes, _ := f.quotes.ListProviderQuotations(context.Background(), p.ID, nil)
	if len(quotes) != 0 {
		t.Fatalf("expected no quotation stored, got %d", len(quotes))
	}
}

func TestSubmitWithAnotherProvidersInviteFails(t *testing.T) {
	f := newFixture(t)
	inv := f.invite(t, provider("Plumbing", 2, 4))[0]

	_, err := f.quotes.Submit(context.Background(), SubmitInput{JobID: f.jobID, ProviderID: uuid.New(), InviteID: &inv.ID, Details: domain.QuotationDetails{Price: 100}})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordResponseLinksUnsolicitedQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := provider("Plumbing", 2, 4)
	inv := f.invite(t, p)[0]
	f.clock.Advance(time.Hour)
	q := f.submit(t, p.ID, nil, 150)

	responded, err := f.invites.RecordResponse(ctx, inv.ID, q.ID)
	if err != nil {
		t.Fatalf("record response: %v", err)
	}
	if responded.Status != domain.InviteStatusResponded || !responded.Responded {
		t.Fatalf("unexpected invite %+v", responded)
	}
	linked, _ := f.quotes.GetQuotation(ctx, q.ID)
	if linked.InviteID == nil || *linked.InviteID != inv.ID {
		t.Fatalf("expected quotation linked to invite")
	}

	events := f.events(t)
	assertTypes(t, events, domain.EventQuoteInvited, domain.EventQuoteSubmitted, domain.EventQuoteUpdated)
	if events[2].Payload.String(domain.PayloadInviteNewStatus) != string(domain.InviteStatusResponded) {
		t.Fatalf("expected invite transition in payload, got %v", events[2].Payload)
	}

	if _, err := f.invites.RecordResponse(ctx, inv.ID, q.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected second response to conflict, got %v", err)
	}
}

func TestRecordResponseOnExpiredInviteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := provider("Plumbing", 2, 4)
	inv := f.invite(t, p)[0]
	q := f.submit(t, p.ID, nil, 150)

	if _, err := f.invites.SweepExpired(ctx, t0.Add(25*time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	_, err := f.invites.RecordResponse(ctx, inv.ID, q.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestUpdateBumpsTimestampAndRecordsChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := uuid.New()
	q := f.submit(t, p, nil, 100)

	f.clock.Advance(time.Minute)
	msg := "<b>Includes</b> parts"
	updated, err := f.quotes.Update(ctx, q.ID, p, domain.QuotationDetails{Price: 120, Message: &msg})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.After(q.UpdatedAt) || updated.Price != 120 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if updated.Message == nil || *updated.Message != "Includes parts" {
		t.Fatalf("expected sanitized message, got %v", updated.Message)
	}

	events := f.events(t)
	assertTypes(t, events, domain.EventQuoteSubmitted, domain.EventQuoteUpdated)
	fields, _ := events[1].Payload[domain.PayloadChangedFields].([]string)
	if len(fields) != 2 || fields[0] != "price" || fields[1] != "message" {
		t.Fatalf("unexpected changed fields %v", events[1].Payload[domain.PayloadChangedFields])
	}

	if _, err := f.quotes.Update(ctx, q.ID, uuid.New(), domain.QuotationDetails{Price: 1}); apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for another provider, got %v", err)
	}
}

func TestAcceptRequiresJobOwner(t *testing.T) {
	f := newFixture(t)
	q := f.submit(t, uuid.New(), nil, 100)

	_, err := f.quotes.Accept(context.Background(), q.ID, uuid.New())
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestExpireStaleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validUntil := t0.Add(2 * time.Hour)
	q, err := f.quotes.Submit(ctx, SubmitInput{JobID: f.jobID, ProviderID: uuid.New(), Details: domain.QuotationDetails{Price: 100, ValidUntil: &validUntil}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.submit(t, uuid.New(), nil, 100)

	first, err := f.quotes.ExpireStale(ctx, t0.Add(3*time.Hour))
	if err != nil || len(first) != 1 || first[0].ID != q.ID || first[0].ExpiredAt == nil {
		t.Fatalf("expected one expired quotation, got %+v (%v)", first, err)
	}
	second, err := f.quotes.ExpireStale(ctx, t0.Add(3*time.Hour))
	if err != nil || len(second) != 0 {
		t.Fatalf("expected no changes on second run, got %d (%v)", len(second), err)
	}
	assertTypes(t, f.events(t), domain.EventQuoteSubmitted, domain.EventQuoteSubmitted, domain.EventQuoteExpired)
}

func TestAcceptAfterValidUntilFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	validUntil := t0.Add(time.Hour)
	q, err := f.quotes.Submit(ctx, SubmitInput{JobID: f.jobID, ProviderID: uuid.New(), Details: domain.QuotationDetails{Price: 100, ValidUntil: &validUntil}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.quotes.Accept(ctx, q.ID, f.customer); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected stale quotation to be refused, got %v", err)
	}
}

func TestSweeperRunsBothSweeps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite(t, provider("Plumbing", 2, 4))
	validUntil := t0.Add(time.Hour)
	if _, err := f.quotes.Submit(ctx, SubmitInput{JobID: f.jobID, ProviderID: uuid.New(), Details: domain.QuotationDetails{Price: 1, ValidUntil: &validUntil}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.clock.Set(t0.Add(30 * time.Hour))
	res, err := f.sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.Invites != 1 || res.Quotations != 1 {
		t.Fatalf("unexpected sweep result %+v", res)
	}
	res, _ = f.sweeper.RunOnce(ctx)
	if res != (SweepResult{}) {
		t.Fatalf("expected empty second pass, got %+v", res)
	}
}

func TestListJobQuotationsChecksOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, uuid.New(), nil, 100)

	quotes, err := f.quotes.ListJobQuotations(ctx, f.jobID, f.customer)
	if err != nil || len(quotes) != 1 {
		t.Fatalf("expected 1 quotation for owner, got %d (%v)", len(quotes), err)
	}
	if _, err := f.quotes.ListJobQuotations(ctx, f.jobID, uuid.New()); apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestListProviderInvitesFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := provider("Plumbing", 2, 4)
	f.invite(t, p)

	invited := domain.InviteStatusInvited
	expired := domain.InviteStatusExpired
	if got, _ := f.invites.ListProviderInvites(ctx, p.ID, &invited); len(got) != 1 {
		t.Fatalf("expected 1 open invite, got %d", len(got))
	}
	if got, _ := f.invites.ListProviderInvites(ctx, p.ID, &expired); len(got) != 0 {
		t.Fatalf("expected 0 expired invites, got %d", len(got))
	}
	bogus := domain.InviteStatus("LOST")
	if _, err := f.invites.ListProviderInvites(ctx, p.ID, &bogus); apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}
