package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"marketplace_quotes_backend/internal/bootstrap"
	"marketplace_quotes_backend/internal/events"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	infra, err := bootstrap.Open(ctx, cfg, log, false)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	quotingModule, err := infra.Module(client)
	if err != nil {
		log.Error("failed to initialize quoting module", "error", err)
		panic("failed to initialize quoting module: " + err.Error())
	}
	svc := quotingModule.Services()

	eventBus := events.NewInMemoryBus(log)
	quotingModule.SubscribeRelay(eventBus)

	worker, err := scheduler.NewWorker(cfg, svc.Sweeper, svc.Matcher, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodicTaskManager(cfg)
	if err != nil {
		log.Error("failed to initialize periodic task manager", "error", err)
		panic("failed to initialize periodic task manager: " + err.Error())
	}

	relay := scheduler.NewRelay(svc.Events, eventBus, cfg.GetOutboxBatchSize(), log)
	relayRunner := scheduler.NewPeriodic("outbox-relay", cfg.GetOutboxPollInterval(), clock.Real{}, log, relay.Tick)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := periodic.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		periodic.Shutdown()
		return nil
	})
	g.Go(func() error {
		relayRunner.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
		panic("scheduler stopped: " + err.Error())
	}
	log.Info("scheduler stopped")
}
