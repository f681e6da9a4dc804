package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"marketplace_quotes_backend/internal/events"
	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func TestParseSchedule(t *testing.T) {
	data := []byte(`
tasks:
  - cronspec: "@every 1m"
    task_type: quoting.sweep_invites
  - cronspec: "*/5 * * * *"
    task_type: quoting.sweep_quotations
`)
	configs, err := ParseSchedule(data, "quoting")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	if configs[0].Cronspec != "@every 1m" || configs[0].Task.Type() != TaskSweepInvites {
		t.Fatalf("unexpected first config %+v", configs[0])
	}
	if configs[1].Task.Type() != TaskSweepQuotations {
		t.Fatalf("unexpected second task %s", configs[1].Task.Type())
	}
}

func TestParseScheduleRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown task", "tasks:\n  - cronspec: \"@every 1m\"\n    task_type: quoting.match_job\n"},
		{"missing cronspec", "tasks:\n  - task_type: quoting.sweep_invites\n"},
		{"not yaml", "tasks: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSchedule([]byte(tt.data), "quoting"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestShippedScheduleParses(t *testing.T) {
	data, err := os.ReadFile("../../config/schedule.yaml")
	if err != nil {
		t.Fatalf("read schedule: %v", err)
	}
	configs, err := ParseSchedule(data, "quoting")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(configs) == 0 {
		t.Fatal("expected scheduled tasks")
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("rediss://:secret@cache.internal:6380/2", true)
	if err != nil {
		t.Fatalf("opt: %v", err)
	}
	if opt.Addr != "cache.internal:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected opt %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected insecure tls config")
	}

	plain, err := redisClientOpt("redis://localhost:6379/0", false)
	if err != nil {
		t.Fatalf("opt: %v", err)
	}
	if plain.TLSConfig != nil {
		t.Fatal("expected no tls for redis://")
	}
}

func TestPeriodicTickUsesClock(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	fake := clock.NewFake(at)
	var seen time.Time
	p := NewPeriodic("sweep", time.Minute, fake, logger.Discard(), func(_ context.Context, now time.Time) error {
		seen = now
		return nil
	})

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !seen.Equal(at) {
		t.Fatalf("expected tick at %v, got %v", at, seen)
	}

	fake.Advance(time.Hour)
	_ = p.Tick(context.Background())
	if !seen.Equal(at.Add(time.Hour)) {
		t.Fatalf("expected tick at advanced time, got %v", seen)
	}
}

func TestPeriodicRunStopsOnCancel(t *testing.T) {
	var ticks atomic.Int32
	p := NewPeriodic("relay", 5*time.Millisecond, clock.Real{}, logger.Discard(), func(context.Context, time.Time) error {
		ticks.Add(1)
		return errors.New("keeps running after errors")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

type fakeOutbox struct {
	events    []domain.QuoteEvent
	processed map[uuid.UUID]bool
	marked    []int64
}

func newFakeOutbox(n int) *fakeOutbox {
	o := &fakeOutbox{processed: map[uuid.UUID]bool{}}
	for i := 1; i <= n; i++ {
		o.events = append(o.events, domain.QuoteEvent{
			ID: uuid.New(), Sequence: int64(i), Type: domain.EventQuoteSubmitted,
			JobID: uuid.New(), ProviderID: uuid.New(),
		})
	}
	return o
}

func (o *fakeOutbox) ListUnprocessed(_ context.Context, limit int) ([]domain.QuoteEvent, error) {
	out := make([]domain.QuoteEvent, 0)
	for _, e := range o.events {
		if !o.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	for _, e := range o.events {
		if e.ID == id {
			o.marked = append(o.marked, e.Sequence)
		}
	}
	o.processed[id] = true
	return nil
}

func TestRelayPublishesInOrderAndMarksProcessed(t *testing.T) {
	outbox := newFakeOutbox(5)
	bus := events.NewInMemoryBus(logger.Discard())
	var published []int64
	events.SubscribeQuoteEvents(bus, events.HandlerFunc(func(_ context.Context, e events.Event) error {
		published = append(published, e.(events.QuoteEventRecorded).Record.Sequence)
		return nil
	}))

	relay := NewRelay(outbox, bus, 3, logger.Discard())
	n, err := relay.RelayOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 relayed, got %d (%v)", n, err)
	}
	n, err = relay.RelayOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 relayed, got %d (%v)", n, err)
	}
	n, _ = relay.RelayOnce(context.Background())
	if n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}

	want := []int64{1, 2, 3, 4, 5}
	for i := range want {
		if published[i] != want[i] || outbox.marked[i] != want[i] {
			t.Fatalf("expected in-order delivery %v, published %v marked %v", want, published, outbox.marked)
		}
	}
}

func TestRelayStopsAtFailureAndRetriesLater(t *testing.T) {
	outbox := newFakeOutbox(4)
	bus := events.NewInMemoryBus(logger.Discard())
	failing := true
	var deliveries int
	events.SubscribeQuoteEvents(bus, events.HandlerFunc(func(_ context.Context, e events.Event) error {
		deliveries++
		if failing && e.(events.QuoteEventRecorded).Record.Sequence == 2 {
			return errors.New("subscriber down")
		}
		return nil
	}))

	relay := NewRelay(outbox, bus, 10, logger.Discard())
	n, err := relay.RelayOnce(context.Background())
	if err == nil || n != 1 {
		t.Fatalf("expected failure after 1 event, got %d (%v)", n, err)
	}
	if len(outbox.marked) != 1 {
		t.Fatalf("expected only the first event processed, got %v", outbox.marked)
	}

	failing = false
	n, err = relay.RelayOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected remaining 3 relayed, got %d (%v)", n, err)
	}
	if deliveries != 5 {
		t.Fatalf("expected event 2 delivered twice, got %d deliveries", deliveries)
	}
}

type fakeSweeps struct {
	invites, quotes int
	err             error
}

func (f *fakeSweeps) SweepInvites(context.Context) (int, error) { return f.invites, f.err }
func (f *fakeSweeps) SweepQuotations(context.Context) (int, error) { return f.quotes, f.err }

type fakeMatcher struct {
	result service.MatchResult
	err    error
	jobs   []uuid.UUID
}

func (f *fakeMatcher) MatchJob(_ context.Context, jobID uuid.UUID) (service.MatchResult, error) {
	f.jobs = append(f.jobs, jobID)
	return f.result, f.err
}

func TestWorkerSweepHandlers(t *testing.T) {
	boom := errors.New("db down")
	var buf bytes.Buffer
	w := &Worker{sweeps: &fakeSweeps{invites: 2, err: boom}, log: logger.NewWithWriter("production", &buf)}

	if err := w.handleSweepInvites(context.Background(), NewSweepInvitesTask()); !errors.Is(err, boom) {
		t.Fatalf("expected sweep error to surface for retry, got %v", err)
	}
	w.sweeps = &fakeSweeps{quotes: 1}
	if err := w.handleSweepQuotations(context.Background(), NewSweepQuotationsTask()); err != nil {
		t.Fatalf("sweep quotations: %v", err)
	}
	// the sweeps log their own outcome
	if buf.Len() != 0 {
		t.Fatalf("expected handlers to add no log lines, got %q", buf.String())
	}
}

func TestWorkerMatchJob(t *testing.T) {
	jobID := uuid.New()
	task, err := NewMatchJobTask(MatchJobPayload{JobID: jobID.String()})
	if err != nil {
		t.Fatalf("task: %v", err)
	}

	tests := []struct {
		name    string
		result  service.MatchResult
		wantErr bool
	}{
		{"matched", service.MatchResult{JobID: jobID, Eligible: 2}, false},
		{"degraded with retry queued", service.MatchResult{Degraded: true, RetryScheduled: true}, false},
		{"still degraded", service.MatchResult{Degraded: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMatcher{result: tt.result}
			w := &Worker{matcher: m, log: logger.Discard()}
			err := w.handleMatchJob(context.Background(), task)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr %v, got %v", tt.wantErr, err)
			}
			if len(m.jobs) != 1 || m.jobs[0] != jobID {
				t.Fatalf("expected match for %s, got %v", jobID, m.jobs)
			}
		})
	}
}

func TestWorkerMatchJobBadPayloadSkipsRetry(t *testing.T) {
	w := &Worker{matcher: &fakeMatcher{}, log: logger.Discard()}
	err := w.handleMatchJob(context.Background(), asynq.NewTask(TaskMatchJob, []byte(`{"jobId":"nope"}`)))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestWorkerRoutesEveryTask(t *testing.T) {
	sweeps := &fakeSweeps{}
	m := &fakeMatcher{}
	w := &Worker{sweeps: sweeps, matcher: m, log: logger.Discard()}
	mux := w.routes()

	match, _ := NewMatchJobTask(MatchJobPayload{JobID: uuid.NewString()})
	for _, task := range []*asynq.Task{NewSweepInvitesTask(), NewSweepQuotationsTask(), match} {
		if err := mux.ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("%s: %v", task.Type(), err)
		}
	}
	if len(m.jobs) != 1 {
		t.Fatalf("expected the match task to reach the matcher")
	}
}
