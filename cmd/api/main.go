package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_quotes_backend/internal/bootstrap"
	"marketplace_quotes_backend/internal/events"
	apphttp "marketplace_quotes_backend/internal/http"
	"marketplace_quotes_backend/internal/http/router"
	"marketplace_quotes_backend/internal/quoting"
	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/internal/scheduler"
	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/config"
	"marketplace_quotes_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	infra, err := bootstrap.Open(ctx, cfg, log, true)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	// Event bus for the outbox relay subscribers
	eventBus := events.NewInMemoryBus(log)

	retries, closeScheduler := initRetryScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	quotingModule, err := infra.Module(retries)
	if err != nil {
		log.Error("failed to initialize quoting module", "error", err)
		panic("failed to initialize quoting module: " + err.Error())
	}
	quotingModule.SubscribeRelay(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   infra.Health,
		EventBus: eventBus,
		Modules:  []apphttp.Module{quotingModule},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Without a redis backed scheduler this process runs the sweeps and the
	// outbox relay itself.
	if retries == nil {
		for _, p := range inProcessRunners(cfg, log, quotingModule, eventBus) {
			p := p
			g.Go(func() error {
				p.Run(gctx)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func inProcessRunners(cfg *config.Config, log *logger.Logger, module *quoting.Module, bus events.Bus) []*scheduler.Periodic {
	svc := module.Services()
	relay := scheduler.NewRelay(svc.Events, bus, cfg.GetOutboxBatchSize(), log)
	return []*scheduler.Periodic{
		scheduler.NewPeriodic("sweeps", cfg.GetSweepInterval(), clock.Real{}, log, sweepTick(svc.Sweeper)),
		scheduler.NewPeriodic("outbox-relay", cfg.GetOutboxPollInterval(), clock.Real{}, log, relay.Tick),
	}
}

func sweepTick(sweeper *service.Sweeper) scheduler.TickFunc {
	return func(ctx context.Context, now time.Time) error {
		_, err := sweeper.RunAt(ctx, now)
		return err
	}
}

func initRetryScheduler(cfg config.SchedulerConfig, log *logger.Logger) (service.RetryScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; match retries disabled, sweeps run in-process")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}
