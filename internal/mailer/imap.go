package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mkorchagin/accountstore/internal/parser"
)

// IMAPClient retrieves verification mail over IMAP. It connects per fetch
// instead of keeping a session open: polling is occasional and short-lived.
type IMAPClient struct {
	creds  IMAPCredentials
	opts   Options
	logger *slog.Logger

	html     *parser.HTMLParser
	detector *parser.CodeDetector
}

// NewIMAPClient creates an IMAP-backed provider.
func NewIMAPClient(creds IMAPCredentials, opts Options, logger *slog.Logger) *IMAPClient {
	return &IMAPClient{
		creds:    creds,
		opts:     opts,
		logger:   logger.With("provider", "imap", "email", creds.Address),
		html:     parser.NewHTMLParser(),
		detector: parser.NewCodeDetector(),
	}
}

// Address returns the mailbox address the client is bound to.
func (c *IMAPClient) Address() string {
	return c.creds.Address
}

// Register is unsupported: IMAP mailboxes are provisioned out of band.
func (c *IMAPClient) Register(ctx context.Context) (string, error) {
	return "", ErrRegistrationUnsupported
}

// FetchVerificationCode connects, scans INBOX messages newer than since and
// extracts the first verification code found.
func (c *IMAPClient) FetchVerificationCode(ctx context.Context, since time.Time) (string, error) {
	cl, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer cl.Logout()

	if _, err := cl.Select("INBOX", true); err != nil {
		return "", fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	uids, err := cl.UidSearch(criteria)
	if err != nil {
		return "", fmt.Errorf("searching INBOX: %w", err)
	}
	if len(uids) == 0 {
		return "", nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqSet, items, messages)
	}()

	var code string
	for msg := range messages {
		if code != "" {
			continue // drain the channel so the fetch goroutine can finish
		}
		code = c.extractFromMessage(msg, section, since)
	}

	if err := <-done; err != nil && code == "" {
		return "", fmt.Errorf("fetching messages: %w", err)
	}
	return code, nil
}

// PollForCode polls the mailbox until a code appears or the timeout elapses.
func (c *IMAPClient) PollForCode(ctx context.Context, since time.Time) (string, error) {
	return pollForCode(ctx, c.opts, c.logger, since, c.FetchVerificationCode)
}

func (c *IMAPClient) connect(ctx context.Context) (*client.Client, error) {
	timeout := c.opts.DialTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.creds.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.creds.Server, err)
	}

	cl, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating IMAP client: %w", err)
	}

	if err := cl.Login(c.creds.Address, c.creds.Password); err != nil {
		cl.Logout()
		return nil, fmt.Errorf("logging in: %w", err)
	}

	return cl, nil
}

func (c *IMAPClient) extractFromMessage(msg *imap.Message, section *imap.BodySectionName, since time.Time) string {
	if msg.Envelope != nil {
		if !since.IsZero() && !msg.Envelope.Date.IsZero() && msg.Envelope.Date.Before(since) {
			return ""
		}
		if code := c.detector.Extract(msg.Envelope.Subject); code != "" {
			return code
		}
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return ""
	}
	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		c.logger.Warn("failed to read message body", "uid", msg.Uid, "error", err)
		return ""
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("failed to read message part", "uid", msg.Uid, "error", err)
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		if strings.HasPrefix(contentType, "text/plain") {
			plain = string(body)
		} else if strings.HasPrefix(contentType, "text/html") {
			html = string(body)
		}
	}

	if code := c.detector.Extract(plain); code != "" {
		return code
	}
	if html != "" {
		if text, err := c.html.Parse(html); err == nil {
			return c.detector.Extract(text)
		}
	}
	return ""
}
