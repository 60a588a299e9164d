package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "DB_POOL_MIN_CONNS", "DB_POOL_MAX_CONNS", "DB_QUERY_TIMEOUT",
		"ACCOUNTS_FILE", "TEMPMAIL_BASE_URL", "TEMPMAIL_DOMAIN", "TEMPMAIL_API_KEY",
		"MAIL_POLL_TIMEOUT", "MAIL_POLL_INTERVAL", "IMAP_DIAL_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		if old, ok := os.LookupEnv(key); ok {
			key, old := key, old
			t.Cleanup(func() { os.Setenv(key, old) })
			os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.DatabaseEnabled())
	assert.Equal(t, 1, cfg.PoolMinConns)
	assert.Equal(t, 10, cfg.PoolMaxConns)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "./data/accounts.json", cfg.AccountsFile)
	assert.Equal(t, "https://mail.chatgpt.org.uk", cfg.TempMailBaseURL)
	assert.Equal(t, 2*time.Minute, cfg.MailPollTimeout)
	assert.Equal(t, 4*time.Second, cfg.MailPollInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "/var/lib/accountstore/accounts.db")
	t.Setenv("DB_POOL_MIN_CONNS", "2")
	t.Setenv("DB_POOL_MAX_CONNS", "20")
	t.Setenv("DB_QUERY_TIMEOUT", "5s")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DatabaseEnabled())
	assert.Equal(t, 2, cfg.PoolMinConns)
	assert.Equal(t, 20, cfg.PoolMaxConns)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_RejectsBadPoolBounds(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_POOL_MIN_CONNS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_POOL_MIN_CONNS")

	clearEnv(t)
	t.Setenv("DB_POOL_MIN_CONNS", "5")
	t.Setenv("DB_POOL_MAX_CONNS", "2")

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_POOL_MAX_CONNS")
}

func TestDatabaseEnabled_IgnoresWhitespace(t *testing.T) {
	cfg := &Config{DatabaseURL: "   "}
	assert.False(t, cfg.DatabaseEnabled())

	cfg.DatabaseURL = " accounts.db "
	assert.True(t, cfg.DatabaseEnabled())
}
