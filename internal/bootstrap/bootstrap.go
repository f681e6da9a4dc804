// Package bootstrap opens the infrastructure shared by the api and scheduler
// binaries and builds the quoting module on top of it. Every backing service
// is optional: without DATABASE_URL, REDIS_URL, the directory URLs or
// MINIO_ENDPOINT the in-memory implementation is used instead.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"marketplace_quotes_backend/internal/adapters/storage"
	"marketplace_quotes_backend/internal/directory"
	apphttp "marketplace_quotes_backend/internal/http"
	"marketplace_quotes_backend/internal/quoting"
	"marketplace_quotes_backend/internal/quoting/metrics"
	"marketplace_quotes_backend/internal/quoting/repository"
	"marketplace_quotes_backend/internal/quoting/service"
	"marketplace_quotes_backend/platform/clock"
	"marketplace_quotes_backend/platform/config"
	"marketplace_quotes_backend/platform/db"
	"marketplace_quotes_backend/platform/logger"
	"marketplace_quotes_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

const (
	startupAttempts = 5
	startupBackoff  = 2 * time.Second
)

// Infra holds the opened backing services.
type Infra struct {
	Store     repository.Store
	Health    apphttp.HealthChecker
	Jobs      directory.JobDirectory
	Providers directory.ProviderDirectory
	Snapshots metrics.SnapshotStore
	Archive   storage.ObjectStore

	cfg     *config.Config
	log     *logger.Logger
	closers []func()
}

// Open connects to everything cfg enables. migrate runs the schema
// migrations first; only the api binary passes true.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*Infra, error) {
	infra := &Infra{cfg: cfg, log: log}
	if err := infra.openStore(ctx, migrate); err != nil {
		infra.Close()
		return nil, err
	}
	infra.openDirectory()
	if err := infra.openSnapshots(); err != nil {
		infra.Close()
		return nil, err
	}
	if err := infra.openArchive(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}

// Module builds the quoting module. retries may be nil.
func (i *Infra) Module(retries service.RetryScheduler) (*quoting.Module, error) {
	return quoting.NewModule(quoting.Dependencies{
		Store:         i.Store,
		Clock:         clock.Real{},
		Log:           i.log,
		Validator:     validator.New(),
		Jobs:          i.Jobs,
		Providers:     i.Providers,
		Retries:       retries,
		RetryDelay:    i.cfg.GetMatchRetryDelay(),
		Snapshots:     i.Snapshots,
		Archive:       i.Archive,
		ArchiveBucket: i.cfg.GetMinioBucketEventArchive(),
	})
}

func (i *Infra) openStore(ctx context.Context, migrate bool) error {
	if !i.cfg.IsPersistent() {
		i.log.Warn("DATABASE_URL not configured; using in-memory store")
		mem := repository.NewMemory()
		i.Store, i.Health = mem, mem
		return nil
	}

	if migrate {
		if err := WithRetry(ctx, i.log, "database migrations", func() error {
			return db.RunMigrations(ctx, i.cfg, i.cfg.MigrationsDir)
		}); err != nil {
			return fmt.Errorf("run database migrations: %w", err)
		}
		i.log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := WithRetry(ctx, i.log, "database connection", func() error {
		p, err := db.NewPool(ctx, i.cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	i.closers = append(i.closers, pool.Close)
	i.log.Info("database connection established")

	i.Store = repository.NewPostgres(pool)
	i.Health = db.NewPoolAdapter(pool)
	return nil
}

func (i *Infra) openDirectory() {
	if !i.cfg.IsDirectoryEnabled() {
		i.log.Warn("JOB_SERVICE_URL/PROVIDER_SERVICE_URL not configured; using static directory")
		static := directory.NewStatic()
		i.Jobs, i.Providers = static, static
		return
	}
	client := directory.NewClient(directory.ClientConfig{
		JobServiceURL:      i.cfg.GetJobServiceURL(),
		ProviderServiceURL: i.cfg.GetProviderServiceURL(),
		Timeout:            i.cfg.GetDirectoryTimeout(),
		MaxAttempts:        i.cfg.GetDirectoryMaxAttempts(),
	}, i.log)
	i.Jobs, i.Providers = client, client
}

func (i *Infra) openSnapshots() error {
	if i.cfg.GetRedisURL() == "" {
		i.log.Warn("REDIS_URL not configured; metrics snapshots kept in memory")
		return nil
	}
	client, err := metrics.NewRedisClient(i.cfg.GetRedisURL())
	if err != nil {
		return fmt.Errorf("metrics snapshot cache: %w", err)
	}
	i.closers = append(i.closers, func() { _ = client.Close() })
	i.Snapshots = metrics.NewRedisSnapshots(client, i.cfg.GetMetricsCacheTTL())
	return nil
}

func (i *Infra) openArchive(ctx context.Context) error {
	bucket := i.cfg.GetMinioBucketEventArchive()
	if !i.cfg.IsMinIOEnabled() {
		i.log.Warn("MINIO_ENDPOINT not configured; event archive kept in memory")
		i.Archive = storage.NewMemory()
		return nil
	}

	minio, err := storage.NewMinIOService(i.cfg)
	if err != nil {
		return fmt.Errorf("initialize storage service: %w", err)
	}
	if err := WithRetry(ctx, i.log, "ensure event archive bucket", func() error {
		return minio.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		return fmt.Errorf("ensure storage bucket %s: %w", bucket, err)
	}
	i.log.Info("storage service initialized", "eventArchiveBucket", bucket)
	i.Archive = minio
	return nil
}

// WithRetry runs fn with exponential backoff, logging each failed attempt.
func WithRetry(ctx context.Context, log *logger.Logger, name string, fn func() error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(startupAttempts-1, retry.NewExponential(startupBackoff))
	err := retry.Do(ctx, backoff, func(context.Context) error {
		attempt++
		if err := fn(); err != nil {
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
