package mailer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkorchagin/accountstore/internal/parser"
)

const defaultTempMailBaseURL = "https://mail.chatgpt.org.uk"

// TempMailClient talks to the temp-mailbox HTTP API: it can generate a fresh
// address and list the mail that address has received. Mailboxes have no
// password; the address is the whole credential.
type TempMailClient struct {
	baseURL  string
	apiKey   string
	domain   string
	jwtToken string
	address  string

	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
	html       *parser.HTMLParser
	detector   *parser.CodeDetector
}

// NewTempMailClient creates a client for the temp-mailbox API.
func NewTempMailClient(creds TempMailCredentials, opts Options, logger *slog.Logger) *TempMailClient {
	base := strings.TrimRight(creds.BaseURL, "/")
	if base == "" {
		base = defaultTempMailBaseURL
	}

	transport := http.DefaultTransport
	if !creds.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &TempMailClient{
		baseURL:  base,
		apiKey:   creds.APIKey,
		domain:   strings.TrimSpace(creds.Domain),
		jwtToken: creds.JWTToken,
		address:  creds.Address,
		opts:     opts,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
		logger:   logger.With("provider", "tempmail"),
		html:     parser.NewHTMLParser(),
		detector: parser.NewCodeDetector(),
	}
}

// Address returns the mailbox address the client is bound to.
func (c *TempMailClient) Address() string {
	return c.address
}

// Register generates a temp mailbox. When a domain filter is configured,
// addresses outside that domain are discarded and generation is retried.
func (c *TempMailClient) Register(ctx context.Context) (string, error) {
	const maxAttempts = 10

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		address, err := c.generate(ctx)
		switch {
		case err != nil:
			c.logger.Warn("mailbox generation failed", "attempt", attempt, "error", err)
		case c.domain != "" && !matchesDomain(address, c.domain):
			c.logger.Debug("skipping mailbox outside domain", "address", address, "domain", c.domain)
		default:
			c.address = address
			c.logger.Info("generated mailbox", "address", address)
			return address, nil
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return "", fmt.Errorf("no usable mailbox after %d attempts", maxAttempts)
}

// FetchVerificationCode lists the mailbox and extracts the first code found,
// scanning subjects before bodies. HTML bodies are flattened to text first.
func (c *TempMailClient) FetchVerificationCode(ctx context.Context, since time.Time) (string, error) {
	if c.address == "" {
		return "", fmt.Errorf("no mailbox address configured")
	}

	messages, err := c.listMessages(ctx)
	if err != nil {
		return "", err
	}

	for _, msg := range messages {
		if !since.IsZero() {
			if ts := msg.timestamp(); !ts.IsZero() && ts.Before(since) {
				continue
			}
		}

		if code := c.detector.Extract(msg.Subject); code != "" {
			c.logger.Debug("code found in subject", "address", c.address)
			return code, nil
		}

		body := firstNonEmpty(msg.Content, msg.Body, msg.Text, msg.HTMLContent)
		if body == "" {
			continue
		}
		if strings.Contains(body, "<") {
			if text, err := c.html.Parse(body); err == nil && text != "" {
				body = text
			}
		}
		if code := c.detector.Extract(body); code != "" {
			c.logger.Debug("code found in body", "address", c.address)
			return code, nil
		}
	}

	return "", nil
}

// PollForCode polls the mailbox until a code appears or the timeout elapses.
func (c *TempMailClient) PollForCode(ctx context.Context, since time.Time) (string, error) {
	return pollForCode(ctx, c.opts, c.logger, since, c.FetchVerificationCode)
}

type generateResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Email string `json:"email"`
	} `json:"data"`
}

type listResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Emails []tempMailMessage `json:"emails"`
	} `json:"data"`
}

// tempMailMessage mirrors the API's loose field naming: the body may arrive
// under any of content/body/text/html_content.
type tempMailMessage struct {
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	Body        string `json:"body"`
	Text        string `json:"text"`
	HTMLContent string `json:"html_content"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

func (m tempMailMessage) timestamp() time.Time {
	raw := m.Date
	if raw == "" {
		raw = m.Time
	}
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func (c *TempMailClient) generate(ctx context.Context) (string, error) {
	var resp generateResponse
	if err := c.getJSON(ctx, c.baseURL+"/api/generate-email", &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Data.Email == "" {
		return "", fmt.Errorf("mailbox generation rejected by server")
	}
	return resp.Data.Email, nil
}

func (c *TempMailClient) listMessages(ctx context.Context) ([]tempMailMessage, error) {
	endpoint := fmt.Sprintf("%s/api/emails?email=%s", c.baseURL, url.QueryEscape(c.address))
	var resp listResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("mail listing rejected by server")
	}
	return resp.Data.Emails, nil
}

func (c *TempMailClient) getJSON(ctx context.Context, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Referer", c.baseURL+"/")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.jwtToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwtToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func matchesDomain(address, domain string) bool {
	return strings.HasSuffix(address, "@"+domain) || strings.HasSuffix(address, "."+domain)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
