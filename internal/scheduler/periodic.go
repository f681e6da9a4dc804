package scheduler

import (
	"context"
	"time"

	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/logger"
)

// TickFunc does one round of periodic work as of now.
type TickFunc func(ctx context.Context, now time.Time) error

// Periodic runs a named task on a fixed interval in-process. It is the
// single-binary alternative to the asynq periodic manager.
type Periodic struct {
	name     string
	interval time.Duration
	clock    clock.Clock
	fn       TickFunc
	log      *logger.Logger
}

func NewPeriodic(name string, interval time.Duration, c clock.Clock, log *logger.Logger, fn TickFunc) *Periodic {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Periodic{name: name, interval: interval, clock: c, fn: fn, log: log}
}

func (p *Periodic) Name() string { return p.name }

// Tick runs the task once.
func (p *Periodic) Tick(ctx context.Context) error {
	err := p.fn(ctx, p.clock.Now())
	if err != nil {
		p.log.Warn("periodic task failed", "task", p.name, "error", err)
	}
	return err
}

// Run ticks immediately and then on every interval until ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	_ = p.Tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Tick(ctx)
		}
	}
}
