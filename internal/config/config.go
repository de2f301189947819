package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, loaded from the environment.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL selects the store: postgres:// URLs use pgx, anything else
	// is treated as a SQLite file path.
	DatabaseURL    string `envconfig:"DATABASE_URL" default:"data/clinic.db"`
	DatabaseSchema string `envconfig:"DATABASE_SCHEMA"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`
	RedisTLS      bool   `envconfig:"REDIS_TLS"`

	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"clinicsync"`

	CliniaBaseURL       string        `envconfig:"CLINIA_BASE_URL" default:"https://dashboard.clinia.io"`
	CliniaAPIKey        string        `envconfig:"CLINIA_API_KEY"`
	CliniaSessionCookie string        `envconfig:"CLINIA_SESSION_COOKIE"`
	CliniaTimeout       time.Duration `envconfig:"CLINIA_TIMEOUT" default:"20s"`

	FeegowBaseURL     string        `envconfig:"FEEGOW_BASE_URL" default:"https://api.feegow.com/v1/api"`
	FeegowAccessToken string        `envconfig:"FEEGOW_ACCESS_TOKEN"`
	FeegowTimeout     time.Duration `envconfig:"FEEGOW_TIMEOUT" default:"60s"`

	// Reconciliation window, relative to the run time.
	FeegowWindowPast   time.Duration `envconfig:"FEEGOW_WINDOW_PAST" default:"720h"`
	FeegowWindowFuture time.Duration `envconfig:"FEEGOW_WINDOW_FUTURE" default:"720h"`

	// Daemon cadences.
	HTTPListenAddr    string        `envconfig:"HTTP_LISTEN_ADDR" default:":8080"`
	AuditInterval     time.Duration `envconfig:"AUDIT_INTERVAL" default:"2m"`
	ChatSyncInterval  time.Duration `envconfig:"CHAT_SYNC_INTERVAL" default:"5m"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30m"`

	QueueResultTTL time.Duration `envconfig:"QUEUE_RESULT_TTL" default:"10m"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	cfg.CliniaBaseURL = strings.TrimRight(cfg.CliniaBaseURL, "/")
	cfg.FeegowBaseURL = strings.TrimRight(cfg.FeegowBaseURL, "/")
	return &cfg, nil
}

// UsesPostgres reports whether DatabaseURL points at a Postgres server.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}
