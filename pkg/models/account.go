package models

import "time"

// Mail provider kinds stored in the mail_provider column.
const (
	MailProviderTempMail = "tempmail"
	MailProviderIMAP     = "imap"
)

// Account represents one externally-registered session/credential bundle.
// The column layout is flat for persistence compatibility; which of the
// mail_* fields are set depends on the provider kind.
type Account struct {
	ID         string  `db:"id" json:"id"`
	SecureCSes string  `db:"secure_c_ses" json:"secure_c_ses"`
	HostCOSes  *string `db:"host_c_oses" json:"host_c_oses,omitempty"`
	CSesIdx    string  `db:"csesidx" json:"csesidx"`
	ConfigID   string  `db:"config_id" json:"config_id"`
	ExpiresAt  *string `db:"expires_at" json:"expires_at,omitempty"`
	Disabled   bool    `db:"disabled" json:"disabled"`

	MailProvider     *string `db:"mail_provider" json:"mail_provider,omitempty"`
	MailAddress      *string `db:"mail_address" json:"mail_address,omitempty"`
	MailPassword     *string `db:"mail_password" json:"mail_password,omitempty"`
	MailClientID     *string `db:"mail_client_id" json:"mail_client_id,omitempty"`
	MailRefreshToken *string `db:"mail_refresh_token" json:"mail_refresh_token,omitempty"`
	MailTenant       *string `db:"mail_tenant" json:"mail_tenant,omitempty"`
	MailBaseURL      *string `db:"mail_base_url" json:"mail_base_url,omitempty"`
	MailJWTToken     *string `db:"mail_jwt_token" json:"mail_jwt_token,omitempty"`
	MailVerifySSL    *bool   `db:"mail_verify_ssl" json:"mail_verify_ssl,omitempty"`
	MailDomain       *string `db:"mail_domain" json:"mail_domain,omitempty"`
	MailAPIKey       *string `db:"mail_api_key" json:"mail_api_key,omitempty"`

	// Assigned by the storage layer on every write.
	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}
