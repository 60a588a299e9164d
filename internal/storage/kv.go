package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// kvGet returns the stored JSON document for key, or ErrNotFound.
func (m *Manager) kvGet(ctx context.Context, key string) (json.RawMessage, error) {
	db, err := m.pool(ctx)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = db.GetContext(ctx, &raw, `SELECT value FROM kv_store WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key %q: %w", key, err)
	}
	return json.RawMessage(raw), nil
}

// kvSet upserts (key, value, now). The stored document is fully replaced,
// never merged.
func (m *Manager) kvSet(ctx context.Context, key string, value any) error {
	db, err := m.pool(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value for key %q: %w", key, err)
	}

	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}
