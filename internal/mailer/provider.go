// Package mailer retrieves verification mail for an account. Each account's
// sparse mail_* column bag maps to one typed credential set, which selects
// the provider implementation.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkorchagin/accountstore/pkg/models"
)

// ErrRegistrationUnsupported is returned by providers whose mailboxes are
// provisioned out of band.
var ErrRegistrationUnsupported = errors.New("provider does not support registration")

// Provider retrieves verification mail for one account.
type Provider interface {
	// Register provisions a fresh mailbox and returns its address.
	Register(ctx context.Context) (string, error)

	// Address returns the mailbox address the provider is bound to.
	Address() string

	// FetchVerificationCode scans current mail for a verification code.
	// Messages older than since are ignored (zero since means no filter).
	// An empty string with a nil error means no code has arrived yet.
	FetchVerificationCode(ctx context.Context, since time.Time) (string, error)

	// PollForCode calls FetchVerificationCode on an interval until a code
	// appears or the poll timeout elapses.
	PollForCode(ctx context.Context, since time.Time) (string, error)
}

// Options common polling knobs shared by all providers.
type Options struct {
	PollTimeout  time.Duration
	PollInterval time.Duration
	DialTimeout  time.Duration
}

// Credentials is the provider-kind tagged union carried by the flat mail_*
// columns on an account.
type Credentials interface {
	kind() string
}

// TempMailCredentials configure the HTTP temp-mailbox provider.
type TempMailCredentials struct {
	BaseURL   string
	APIKey    string
	Domain    string
	JWTToken  string
	VerifySSL bool
	Address   string // already-registered mailbox, may be empty
}

func (TempMailCredentials) kind() string { return models.MailProviderTempMail }

// IMAPCredentials configure the IMAP provider.
type IMAPCredentials struct {
	Address  string
	Password string
	Server   string // host:port
}

func (IMAPCredentials) kind() string { return models.MailProviderIMAP }

// CredentialsFromAccount maps an account's column bag to a typed credential
// set. An unset mail_provider defaults to the temp-mail provider.
func CredentialsFromAccount(account models.Account) (Credentials, error) {
	provider := deref(account.MailProvider)
	switch provider {
	case "", models.MailProviderTempMail:
		verify := true
		if account.MailVerifySSL != nil {
			verify = *account.MailVerifySSL
		}
		return TempMailCredentials{
			BaseURL:   deref(account.MailBaseURL),
			APIKey:    deref(account.MailAPIKey),
			Domain:    deref(account.MailDomain),
			JWTToken:  deref(account.MailJWTToken),
			VerifySSL: verify,
			Address:   deref(account.MailAddress),
		}, nil

	case models.MailProviderIMAP:
		if deref(account.MailAddress) == "" || deref(account.MailPassword) == "" {
			return nil, fmt.Errorf("account %s: imap provider needs mail_address and mail_password", account.ID)
		}
		server := deref(account.MailBaseURL)
		if server == "" {
			return nil, fmt.Errorf("account %s: imap provider needs mail_base_url (host:port)", account.ID)
		}
		return IMAPCredentials{
			Address:  deref(account.MailAddress),
			Password: deref(account.MailPassword),
			Server:   server,
		}, nil

	default:
		return nil, fmt.Errorf("account %s: unknown mail provider %q", account.ID, provider)
	}
}

// New builds a provider for the given credentials.
func New(creds Credentials, opts Options, logger *slog.Logger) (Provider, error) {
	switch c := creds.(type) {
	case TempMailCredentials:
		return NewTempMailClient(c, opts, logger), nil
	case IMAPCredentials:
		return NewIMAPClient(c, opts, logger), nil
	default:
		return nil, fmt.Errorf("unsupported credentials type %T", creds)
	}
}

// pollForCode is the shared fetch-until-deadline loop.
func pollForCode(
	ctx context.Context,
	opts Options,
	logger *slog.Logger,
	since time.Time,
	fetch func(context.Context, time.Time) (string, error),
) (string, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 4 * time.Second
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	deadline := time.Now().Add(timeout)
	for {
		code, err := fetch(ctx, since)
		if err != nil {
			logger.Warn("verification code fetch failed", "error", err)
		}
		if code != "" {
			return code, nil
		}

		if time.Now().Add(interval).After(deadline) {
			return "", fmt.Errorf("timed out waiting for verification code after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
