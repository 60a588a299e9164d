package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mkorchagin/accountstore/pkg/models"
)

// The synchronous facade. Every method is safe to call from any goroutine:
// the underlying operation is scheduled onto the background worker and the
// caller blocks until it finishes. Failures are logged here, at the boundary
// that converts them into a sentinel (false/nil); callers must treat the
// sentinel as "operation did not take effect".

// LoadAccounts returns every persisted account ordered by creation time.
// A nil result means the store is disabled or the read failed; callers are
// expected to fall back to the external accounts file.
func (m *Manager) LoadAccounts() []models.Account {
	if !m.Enabled() {
		return nil
	}
	v, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return m.loadAccounts(ctx)
	})
	if err != nil {
		m.logger.Error("account load failed", "error", err)
		return nil
	}
	accounts := v.([]models.Account)
	m.logger.Info("loaded accounts from database", "count", len(accounts))
	return accounts
}

// SyncAccounts makes the persisted set exactly match accounts, atomically.
// An empty target set wipes the table: desired-state semantics.
func (m *Manager) SyncAccounts(accounts []models.Account) bool {
	if !m.Enabled() {
		return false
	}
	_, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return nil, m.syncAccounts(ctx, accounts)
	})
	if err != nil {
		m.logger.Error("account sync failed", "count", len(accounts), "error", err)
		return false
	}
	m.logger.Info("synced accounts to database", "count", len(accounts))
	return true
}

// SaveAccount upserts a single account keyed on id. Returns false if the
// record has no id.
func (m *Manager) SaveAccount(account models.Account) bool {
	if !m.Enabled() {
		return false
	}
	if account.ID == "" {
		m.logger.Warn("refusing to save account without id")
		return false
	}
	_, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return nil, m.saveAccount(ctx, account)
	})
	if err != nil {
		m.logger.Error("account save failed", "id", account.ID, "error", err)
		return false
	}
	return true
}

// DeleteAccount removes one account. Deleting an unknown id is a no-op
// success.
func (m *Manager) DeleteAccount(id string) bool {
	return m.DeleteAccounts([]string{id})
}

// DeleteAccounts removes many accounts by id. An empty list is a no-op
// success and never touches the database.
func (m *Manager) DeleteAccounts(ids []string) bool {
	if !m.Enabled() {
		return false
	}
	if len(ids) == 0 {
		return true
	}
	_, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return nil, m.deleteAccounts(ctx, ids)
	})
	if err != nil {
		m.logger.Error("account delete failed", "count", len(ids), "error", err)
		return false
	}
	return true
}

// AccountsLastUpdated returns the newest updated_at across all accounts, or
// nil when the store is disabled, unreadable or empty. External callers use
// it to detect whether a reload is needed without reading the full table.
func (m *Manager) AccountsLastUpdated() *time.Time {
	if !m.Enabled() {
		return nil
	}
	v, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return m.accountsLastUpdated(ctx)
	})
	if err != nil {
		m.logger.Error("accounts updated_at read failed", "error", err)
		return nil
	}
	return v.(*time.Time)
}

// LoadSettings returns the stored settings document, or nil.
func (m *Manager) LoadSettings() map[string]any {
	return m.loadDocument("settings")
}

// SaveSettings fully replaces the stored settings document.
func (m *Manager) SaveSettings(settings map[string]any) bool {
	return m.saveDocument("settings", settings)
}

// LoadStats returns the stored statistics document, or nil.
func (m *Manager) LoadStats() map[string]any {
	return m.loadDocument("stats")
}

// SaveStats fully replaces the stored statistics document.
func (m *Manager) SaveStats(stats map[string]any) bool {
	return m.saveDocument("stats", stats)
}

func (m *Manager) loadDocument(key string) map[string]any {
	if !m.Enabled() {
		return nil
	}
	v, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return m.kvGet(ctx, key)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		m.logger.Error("kv read failed", "key", key, "error", err)
		return nil
	}

	doc := make(map[string]any)
	if err := json.Unmarshal(v.(json.RawMessage), &doc); err != nil {
		m.logger.Error("kv document malformed", "key", key, "error", err)
		return nil
	}
	return doc
}

func (m *Manager) saveDocument(key string, doc map[string]any) bool {
	if !m.Enabled() {
		return false
	}
	_, err := m.exec.submit(func(ctx context.Context) (any, error) {
		return nil, m.kvSet(ctx, key, doc)
	})
	if err != nil {
		m.logger.Error("kv write failed", "key", key, "error", err)
		return false
	}
	return true
}
