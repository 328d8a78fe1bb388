package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wardenhq/warden/pkg/async"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Sessions  SessionConfig
	Retention RetentionConfig
	Revoke    async.RetryConfig
	SMTP      SMTPConfig
	Archive   ArchiveConfig
	Tracing   TracingConfig

	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// RedisConfig holds session-store and push-channel settings.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// SessionConfig holds credential lifetime settings.
type SessionConfig struct {
	TTL time.Duration
}

// RetentionConfig holds the cleanup sweeper's windows and schedule.
type RetentionConfig struct {
	// SnapshotWindow is how long a consumed snapshot is kept before it is
	// eligible for deletion. Active snapshots are never deleted.
	SnapshotWindow time.Duration

	// AuditWindow is how long suspension audit entries are kept.
	AuditWindow time.Duration

	// Schedule is a cron expression for the sweep.
	Schedule string
}

// SMTPConfig holds settings for the best-effort notification sink.
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ArchiveConfig holds optional S3 settings for archiving consumed
// snapshots before deletion.
type ArchiveConfig struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Insecure       bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
			Port:            getEnv("WARDEN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
		},
		Postgres: PostgresConfig{
			URL:          getEnv("WARDEN_POSTGRES_URL", "postgres://localhost/warden?sslmode=disable"),
			MaxOpenConns: getEnvInt("WARDEN_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("WARDEN_POSTGRES_MIN_CONNS", 5),
			ConnTimeout:  getEnvDuration("WARDEN_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:        getEnv("WARDEN_REDIS_URL", "redis://localhost:6379/0"),
			Password:   getEnv("WARDEN_REDIS_PASSWORD", ""),
			DB:         getEnvInt("WARDEN_REDIS_DB", 0),
			MaxRetries: getEnvInt("WARDEN_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("WARDEN_REDIS_POOL_SIZE", 10),
		},
		Sessions: SessionConfig{
			TTL: getEnvDuration("WARDEN_SESSION_TTL", 24*time.Hour),
		},
		Retention: RetentionConfig{
			SnapshotWindow: getEnvDuration("WARDEN_SNAPSHOT_RETENTION", 30*24*time.Hour),
			AuditWindow:    getEnvDuration("WARDEN_AUDIT_RETENTION", 90*24*time.Hour),
			Schedule:       getEnv("WARDEN_SWEEP_SCHEDULE", "30 3 * * *"),
		},
		Revoke: async.RetryConfig{
			MaxAttempts:       getEnvInt("WARDEN_REVOKE_MAX_ATTEMPTS", 5),
			InitialDelay:      getEnvDuration("WARDEN_REVOKE_INITIAL_DELAY", 1*time.Second),
			MaxDelay:          getEnvDuration("WARDEN_REVOKE_MAX_DELAY", 1*time.Minute),
			BackoffMultiplier: 2.0,
		},
		SMTP: SMTPConfig{
			Enabled:  getEnvBool("WARDEN_SMTP_ENABLED", false),
			Host:     getEnv("WARDEN_SMTP_HOST", ""),
			Port:     getEnvInt("WARDEN_SMTP_PORT", 587),
			Username: getEnv("WARDEN_SMTP_USERNAME", ""),
			Password: getEnv("WARDEN_SMTP_PASSWORD", ""),
			From:     getEnv("WARDEN_SMTP_FROM", "warden@localhost"),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvBool("WARDEN_ARCHIVE_ENABLED", false),
			Bucket:    getEnv("WARDEN_ARCHIVE_BUCKET", ""),
			Prefix:    getEnv("WARDEN_ARCHIVE_PREFIX", "snapshots"),
			Region:    getEnv("WARDEN_ARCHIVE_REGION", "us-east-1"),
			Endpoint:  getEnv("WARDEN_ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("WARDEN_ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("WARDEN_ARCHIVE_SECRET_KEY", ""),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
			Endpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
			ServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "dev"),
			Insecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
		},
		LogLevel: getEnv("WARDEN_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Retention.SnapshotWindow <= 0 {
		return fmt.Errorf("snapshot retention window must be positive")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}
	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return fmt.Errorf("smtp host is required when notifications are enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
