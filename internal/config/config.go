// Package config provides centralized configuration management for the job
// engine. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Jobs        JobsConfig
	Artifacts   ArtifactsConfig
	Redis       RedisConfig
	ObjectStore ObjectStoreConfig
	History     HistoryConfig
	Rate        RateLimitConfig
	Security    SecurityConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading a request including an upload body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout bounds writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is how long running jobs get to drain on shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty selects in-memory
	// stores. Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies pending migrations at startup (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"false"`
}

// JobsConfig holds worker pool and job execution settings.
type JobsConfig struct {
	// Workers is the number of jobs executed in parallel (default: 4)
	Workers int `env:"JOB_WORKERS" default:"4"`

	// QueueSize is how many accepted jobs may wait for a worker (default: 256)
	QueueSize int `env:"JOB_QUEUE_SIZE" default:"256"`

	// Timeout fails a job that runs longer than this (default: 30m)
	Timeout time.Duration `env:"JOB_TIMEOUT" default:"30m"`

	// ProgressInterval is rows processed between progress writes (default: 50)
	ProgressInterval int `env:"JOB_PROGRESS_INTERVAL" default:"50"`

	// MaxUploadSize is the largest accepted import file (default: 50MB)
	MaxUploadSize ByteSize `env:"JOB_MAX_UPLOAD_SIZE" default:"50MB"`

	// Retention is how long finished job metadata is kept (default: 168h)
	Retention time.Duration `env:"JOB_RETENTION" default:"168h"`
}

// ArtifactsConfig selects where exports and error reports are kept.
type ArtifactsConfig struct {
	// Backend is memory, redis or minio (default: memory)
	Backend string `env:"ARTIFACT_BACKEND" default:"memory"`

	// TTL is how long a generated file stays downloadable (default: 24h)
	TTL time.Duration `env:"ARTIFACT_TTL" default:"24h"`

	// SweepInterval is how often expired data is purged (default: 10m)
	SweepInterval time.Duration `env:"ARTIFACT_SWEEP_INTERVAL" default:"10m"`
}

// RedisConfig is used when ARTIFACT_BACKEND=redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" default:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" default:"10"`
	Prefix   string `env:"REDIS_KEY_PREFIX" default:"adminjobs:artifact:"`
}

// ObjectStoreConfig is used when ARTIFACT_BACKEND=minio.
type ObjectStoreConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" default:"adminjobs-artifacts"`
	Region    string `env:"MINIO_REGION"`
	UseSSL    bool   `env:"MINIO_USE_SSL" default:"false"`
	Prefix    string `env:"MINIO_PREFIX" default:"artifacts/"`
}

// HistoryConfig holds audit history settings.
type HistoryConfig struct {
	// RetentionDays purges older entries; 0 keeps history forever (default: 0)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"0"`

	// PageSizeMax caps the page size of history queries (default: 100)
	PageSizeMax int `env:"HISTORY_PAGE_SIZE_MAX" default:"100"`
}

// Retention returns the history retention window, zero when unbounded.
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// RateLimitConfig holds per-tenant enqueue rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained enqueue rate per organization (default: 30)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"30"`

	// Burst is how many enqueues may arrive at once (default: 10)
	Burst int `env:"RATE_LIMIT_BURST" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
