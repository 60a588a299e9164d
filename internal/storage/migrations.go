package storage

// schema is idempotent: safe to run on every pool creation and under
// concurrent bootstrap attempts from independent processes.
const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    secure_c_ses TEXT NOT NULL,
    host_c_oses TEXT,
    csesidx TEXT NOT NULL,
    config_id TEXT NOT NULL,
    expires_at TEXT,
    disabled BOOLEAN DEFAULT false,
    mail_provider TEXT,
    mail_address TEXT,
    mail_password TEXT,
    mail_client_id TEXT,
    mail_refresh_token TEXT,
    mail_tenant TEXT,
    mail_base_url TEXT,
    mail_jwt_token TEXT,
    mail_verify_ssl BOOLEAN,
    mail_domain TEXT,
    mail_api_key TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_disabled ON accounts(disabled);
CREATE INDEX IF NOT EXISTS idx_accounts_expires_at ON accounts(expires_at);
`
