package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Storage. DATABASE_URL is the enablement signal: when empty, the
	// database layer is disabled and callers use the accounts file.
	DatabaseURL  string        `env:"DATABASE_URL"`
	PoolMinConns int           `env:"DB_POOL_MIN_CONNS" envDefault:"1"`
	PoolMaxConns int           `env:"DB_POOL_MAX_CONNS" envDefault:"10"`
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"30s"`

	// File fallback
	AccountsFile string `env:"ACCOUNTS_FILE" envDefault:"./data/accounts.json"`

	// Mail retrieval
	TempMailBaseURL  string        `env:"TEMPMAIL_BASE_URL" envDefault:"https://mail.chatgpt.org.uk"`
	TempMailDomain   string        `env:"TEMPMAIL_DOMAIN"`
	TempMailAPIKey   string        `env:"TEMPMAIL_API_KEY"`
	MailPollTimeout  time.Duration `env:"MAIL_POLL_TIMEOUT" envDefault:"2m"`
	MailPollInterval time.Duration `env:"MAIL_POLL_INTERVAL" envDefault:"4s"`
	IMAPDialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// DatabaseEnabled returns true if a database connection string is configured
func (c *Config) DatabaseEnabled() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.PoolMinConns < 1 {
		return nil, fmt.Errorf("DB_POOL_MIN_CONNS must be at least 1, got %d", cfg.PoolMinConns)
	}
	if cfg.PoolMaxConns < cfg.PoolMinConns {
		return nil, fmt.Errorf("DB_POOL_MAX_CONNS must be >= DB_POOL_MIN_CONNS, got %d < %d",
			cfg.PoolMaxConns, cfg.PoolMinConns)
	}

	return cfg, nil
}
