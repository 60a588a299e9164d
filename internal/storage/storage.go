// Package storage persists accounts, settings and statistics in a relational
// store when DATABASE_URL is configured. Callers treat a nil/false result as
// "use the external accounts file instead".
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotConfigured is returned when no connection string is set
	ErrNotConfigured = errors.New("storage not configured")

	// ErrUnavailable is returned when the pool could not be constructed
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
)

// Options tunes the connection pool and per-statement timeout.
type Options struct {
	DatabaseURL  string
	MinConns     int
	MaxConns     int
	QueryTimeout time.Duration
}

// Manager owns the process-wide connection pool and the background
// dispatcher every operation is routed through. Construct one per process.
type Manager struct {
	opts   Options
	logger *slog.Logger
	exec   *executor

	mu     sync.Mutex
	db     atomic.Pointer[sqlx.DB]
	builds int // pools constructed, read by tests
}

// New creates a Manager. The pool itself is built lazily on first use.
func New(opts Options, logger *slog.Logger) *Manager {
	if opts.MinConns < 1 {
		opts.MinConns = 1
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 10
	}
	if opts.MaxConns < opts.MinConns {
		opts.MaxConns = opts.MinConns
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}

	log := logger.With("component", "storage")
	return &Manager{
		opts:   opts,
		logger: log,
		exec:   newExecutor(opts.QueryTimeout, log),
	}
}

// Enabled reports whether a connection string is configured.
func (m *Manager) Enabled() bool {
	return strings.TrimSpace(m.opts.DatabaseURL) != ""
}

// pool returns the singleton connection pool, creating it on first call.
// The schema is bootstrapped before the pool reference is published, so any
// observer of a non-nil pool can assume the tables exist. A failed creation
// is not cached: the next call retries from scratch.
func (m *Manager) pool(ctx context.Context) (*sqlx.DB, error) {
	if db := m.db.Load(); db != nil {
		return db, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if db := m.db.Load(); db != nil {
		return db, nil
	}

	url := strings.TrimSpace(m.opts.DatabaseURL)
	if url == "" {
		return nil, ErrNotConfigured
	}

	db, err := m.open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m.builds++
	m.db.Store(db)
	m.logger.Info("database pool initialized", "max_conns", m.opts.MaxConns)
	return db, nil
}

func (m *Manager) open(ctx context.Context, url string) (*sqlx.DB, error) {
	// Ensure directory exists
	if dir := filepath.Dir(url); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Connect with WAL mode and foreign keys enabled
	db, err := sqlx.ConnectContext(ctx, "sqlite3", buildDSN(url))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(m.opts.MaxConns)
	db.SetMaxIdleConns(m.opts.MinConns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}

	return db, nil
}

// buildDSN appends the standard connection parameters, joining with the
// URL's existing query string when it has one.
func buildDSN(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
}

// Close tears down the pool and the background dispatcher. Only meant for
// process shutdown and tests.
func (m *Manager) Close() error {
	m.exec.stop()
	if db := m.db.Swap(nil); db != nil {
		return db.Close()
	}
	return nil
}
