package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mkorchagin/accountstore/pkg/models"
)

// upsertAccountSQL inserts a record or, on an id conflict, overwrites every
// field except id and created_at and refreshes updated_at.
const upsertAccountSQL = `
	INSERT INTO accounts (
		id, secure_c_ses, host_c_oses, csesidx, config_id, expires_at, disabled,
		mail_provider, mail_address, mail_password, mail_client_id,
		mail_refresh_token, mail_tenant, mail_base_url, mail_jwt_token,
		mail_verify_ssl, mail_domain, mail_api_key, created_at, updated_at
	) VALUES (
		:id, :secure_c_ses, :host_c_oses, :csesidx, :config_id, :expires_at, :disabled,
		:mail_provider, :mail_address, :mail_password, :mail_client_id,
		:mail_refresh_token, :mail_tenant, :mail_base_url, :mail_jwt_token,
		:mail_verify_ssl, :mail_domain, :mail_api_key, :created_at, :updated_at
	)
	ON CONFLICT(id) DO UPDATE SET
		secure_c_ses = excluded.secure_c_ses,
		host_c_oses = excluded.host_c_oses,
		csesidx = excluded.csesidx,
		config_id = excluded.config_id,
		expires_at = excluded.expires_at,
		disabled = excluded.disabled,
		mail_provider = excluded.mail_provider,
		mail_address = excluded.mail_address,
		mail_password = excluded.mail_password,
		mail_client_id = excluded.mail_client_id,
		mail_refresh_token = excluded.mail_refresh_token,
		mail_tenant = excluded.mail_tenant,
		mail_base_url = excluded.mail_base_url,
		mail_jwt_token = excluded.mail_jwt_token,
		mail_verify_ssl = excluded.mail_verify_ssl,
		mail_domain = excluded.mail_domain,
		mail_api_key = excluded.mail_api_key,
		updated_at = excluded.updated_at
`

// loadAccounts returns all persisted accounts ordered by creation time.
func (m *Manager) loadAccounts(ctx context.Context) ([]models.Account, error) {
	db, err := m.pool(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0)
	query := `SELECT * FROM accounts ORDER BY created_at, id`
	if err := db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	return accounts, nil
}

// accountsLastUpdated returns the newest updated_at across all rows, or nil
// when the table is empty.
func (m *Manager) accountsLastUpdated(ctx context.Context) (*time.Time, error) {
	db, err := m.pool(ctx)
	if err != nil {
		return nil, err
	}

	var ts time.Time
	query := `SELECT updated_at FROM accounts ORDER BY updated_at DESC LIMIT 1`
	err = db.GetContext(ctx, &ts, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading accounts updated_at: %w", err)
	}
	return &ts, nil
}

// saveAccount upserts a single record keyed on id.
func (m *Manager) saveAccount(ctx context.Context, account models.Account) error {
	db, err := m.pool(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := db.NamedExecContext(ctx, upsertAccountSQL, &account); err != nil {
		return fmt.Errorf("saving account %s: %w", account.ID, err)
	}
	return nil
}

// deleteAccounts removes the given ids. Unknown ids are ignored.
func (m *Manager) deleteAccounts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	db, err := m.pool(ctx)
	if err != nil {
		return err
	}

	query, args, err := sqlx.In(`DELETE FROM accounts WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("building account delete: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting accounts: %w", err)
	}
	return nil
}

// syncAccounts makes the accounts table exactly match the target set, in one
// transaction: rows whose id is absent from the target are deleted, every
// target record with an id is upserted in the order given (so a duplicate id
// resolves to the last occurrence). On any failure the transaction rolls
// back and persisted state is unchanged.
func (m *Manager) syncAccounts(ctx context.Context, accounts []models.Account) error {
	db, err := m.pool(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sync transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing []string
	if err := tx.SelectContext(ctx, &existing, `SELECT id FROM accounts`); err != nil {
		return fmt.Errorf("reading existing account ids: %w", err)
	}

	// Records without an id are not persisted and not considered for
	// deletion.
	target := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if a.ID != "" {
			target[a.ID] = struct{}{}
		}
	}

	var toDelete []string
	for _, id := range existing {
		if _, ok := target[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) > 0 {
		query, args, err := sqlx.In(`DELETE FROM accounts WHERE id IN (?)`, toDelete)
		if err != nil {
			return fmt.Errorf("building account delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting stale accounts: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, account := range accounts {
		if account.ID == "" {
			continue
		}
		account.CreatedAt = now
		account.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, upsertAccountSQL, &account); err != nil {
			return fmt.Errorf("upserting account %s: %w", account.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing account sync: %w", err)
	}
	return nil
}
