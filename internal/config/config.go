package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the core runtime configuration for the collector.
// Values are sourced from environment variables (optionally loaded from
// a .env file by the caller) with defaults suitable for local use.
type Config struct {
	ListenAddr string `env:"APP_LISTEN_ADDR" envDefault:":3001"`

	// DatabaseURL is either a postgres:// URL or a SQLite file path.
	// ":memory:" opens a throwaway in-memory database.
	DatabaseURL string `env:"APP_DATABASE_URL" envDefault:"./data/analytics.db"`

	// Environment is "development" or "production". Production responses
	// never carry storage error detail.
	Environment string `env:"APP_ENV" envDefault:"development"`

	LogLevel string `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"APP_LOG_JSON" envDefault:"false"`

	// APIKey is the bootstrap bearer token for the analytics routes.
	// If empty, the routes are open.
	APIKey string `env:"APP_API_KEY"`

	AllowedOrigins []string `env:"APP_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	MaxBodyBytes int `env:"APP_MAX_BODY_BYTES" envDefault:"10485760"`

	// RetentionDays bounds how long raw rows are kept. 0 keeps everything.
	RetentionDays int `env:"APP_RETENTION_DAYS" envDefault:"0"`

	RollupEnabled bool `env:"APP_ROLLUP_ENABLED" envDefault:"true"`

	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.RetentionDays < 0 {
		cfg.RetentionDays = 0
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins

	return cfg, nil
}

// IsProduction reports whether error detail must be withheld from clients.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
