// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetScheduleFile() string
}

// SweepConfig provides cadence settings for the in-process periodic runners.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetOutboxPollInterval() time.Duration
	GetOutboxBatchSize() int
	GetMatchRetryDelay() time.Duration
}

// DirectoryConfig provides settings for the upstream job and provider services.
type DirectoryConfig interface {
	GetJobServiceURL() string
	GetProviderServiceURL() string
	GetDirectoryTimeout() time.Duration
	GetDirectoryMaxAttempts() int
	IsDirectoryEnabled() bool
}

// MetricsCacheConfig provides settings for the metrics snapshot cache.
type MetricsCacheConfig interface {
	GetRedisURL() string
	GetMetricsCacheTTL() time.Duration
}

// ArchiveConfig provides settings for the event archive bucket.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketEventArchive() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	MigrationsDir           string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	ScheduleFile            string
	SweepInterval           time.Duration
	OutboxPollInterval      time.Duration
	OutboxBatchSize         int
	MatchRetryDelay         time.Duration
	JobServiceURL           string
	ProviderServiceURL      string
	DirectoryTimeout        time.Duration
	DirectoryMaxAttempts    int
	MetricsCacheTTL         time.Duration
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketEventArchive string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetScheduleFile() string   { return c.ScheduleFile }

// SweepConfig implementation
func (c *Config) GetSweepInterval() time.Duration      { return c.SweepInterval }
func (c *Config) GetOutboxPollInterval() time.Duration { return c.OutboxPollInterval }
func (c *Config) GetOutboxBatchSize() int              { return c.OutboxBatchSize }
func (c *Config) GetMatchRetryDelay() time.Duration    { return c.MatchRetryDelay }

// DirectoryConfig implementation
func (c *Config) GetJobServiceURL() string           { return c.JobServiceURL }
func (c *Config) GetProviderServiceURL() string      { return c.ProviderServiceURL }
func (c *Config) GetDirectoryTimeout() time.Duration { return c.DirectoryTimeout }
func (c *Config) GetDirectoryMaxAttempts() int       { return c.DirectoryMaxAttempts }
func (c *Config) IsDirectoryEnabled() bool {
	return c.JobServiceURL != "" && c.ProviderServiceURL != ""
}

// MetricsCacheConfig implementation
func (c *Config) GetMetricsCacheTTL() time.Duration { return c.MetricsCacheTTL }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketEventArchive() string {
	return c.MinioBucketEventArchive
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// IsPersistent reports whether a Postgres database is configured.
func (c *Config) IsPersistent() bool { return c.DatabaseURL != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		MigrationsDir:           getEnv("MIGRATIONS_DIR", "migrations"),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "quoting"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		ScheduleFile:            getEnv("SCHEDULE_FILE", "config/schedule.yaml"),
		SweepInterval:           mustDuration(getEnv("SWEEP_INTERVAL", "1m")),
		OutboxPollInterval:      mustDuration(getEnv("OUTBOX_POLL_INTERVAL", "2s")),
		OutboxBatchSize:         mustInt(getEnv("OUTBOX_BATCH_SIZE", "100")),
		MatchRetryDelay:         mustDuration(getEnv("MATCH_RETRY_DELAY", "30s")),
		JobServiceURL:           getEnv("JOB_SERVICE_URL", ""),
		ProviderServiceURL:      getEnv("PROVIDER_SERVICE_URL", ""),
		DirectoryTimeout:        mustDuration(getEnv("DIRECTORY_TIMEOUT", "5s")),
		DirectoryMaxAttempts:    mustInt(getEnv("DIRECTORY_MAX_ATTEMPTS", "3")),
		MetricsCacheTTL:         mustDuration(getEnv("METRICS_CACHE_TTL", "24h")),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketEventArchive: getEnv("MINIO_BUCKET_EVENT_ARCHIVE", "quote-event-archive"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be a positive duration")
	}
	if c.DirectoryMaxAttempts < 1 {
		return fmt.Errorf("DIRECTORY_MAX_ATTEMPTS must be at least 1")
	}
	if (c.JobServiceURL == "") != (c.ProviderServiceURL == "") {
		return fmt.Errorf("JOB_SERVICE_URL and PROVIDER_SERVICE_URL must be set together")
	}
	if c.MinIOEndpoint != "" && (c.MinIOAccessKey == "" || c.MinIOSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
