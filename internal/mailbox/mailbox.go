// Package mailbox reads unread mail and composes outgoing messages on top of the Gmail API.
package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hal9000y/email-mcp/internal/format"
)

// ErrNoRecipients is returned when a recipient string holds no address.
var ErrNoRecipients = errors.New("no recipients")

const defaultConcurrency = 4

type gmailSvc interface {
	ListUnread(ctx context.Context, maxResults int64) ([]string, error)
	GetRawMessage(ctx context.Context, msgID string) ([]byte, error)
	SendRaw(ctx context.Context, raw []byte, threadID string) (string, error)
	CreateDraft(ctx context.Context, raw []byte, threadID string) (string, error)
	ProfileEmail(ctx context.Context) (string, error)
}

// EmailSummary is an unread message reduced to what a reply needs.
type EmailSummary struct {
	ID        string // Gmail message ID
	MessageID string // Message-ID header
	From      string
	Subject   string
	Date      string
	Body      string // text written by the sender, without quotes and signature
	FullBody  string
}

type Option func(*Mailbox)

// WithConcurrency bounds parallel message fetches in GetUnread.
func WithConcurrency(n int) Option {
	return func(m *Mailbox) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithClock replaces time.Now for the Date header of composed messages.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) { m.now = now }
}

type Mailbox struct {
	svc         gmailSvc
	conv        *format.Converter
	concurrency int
	now         func() time.Time
}

func New(svc gmailSvc, opts ...Option) *Mailbox {
	m := &Mailbox{
		svc:         svc,
		conv:        &format.Converter{},
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetUnread returns up to maxEmails unread inbox messages in the order Gmail lists them.
// A failure on any message fails the whole call.
func (m *Mailbox) GetUnread(ctx context.Context, maxEmails int64) ([]EmailSummary, error) {
	ids, err := m.svc.ListUnread(ctx, maxEmails)
	if err != nil {
		return nil, fmt.Errorf("svc.ListUnread failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	results := make([]EmailSummary, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			raw, err := m.svc.GetRawMessage(gctx, id)
			if err != nil {
				return fmt.Errorf("svc.GetRawMessage failed for %s: %w", id, err)
			}

			summary, err := m.summarize(id, raw)
			if err != nil {
				return fmt.Errorf("summarize failed for %s: %w", id, err)
			}

			results[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (m *Mailbox) summarize(id string, raw []byte) (EmailSummary, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailSummary{}, fmt.Errorf("enmime.ReadEnvelope failed: %w", err)
	}

	full := env.Text
	if env.HTML != "" && !hasPlainText(env.Root) {
		// enmime down-converts HTML on its own; prefer our converter for link and list handling.
		text, err := m.conv.HTML2Text([]byte(env.HTML))
		if err != nil {
			log.Warn().Err(err).Str("message_id", id).Msg("html conversion failed, using enmime text")
		} else {
			full = text
		}
	}

	return EmailSummary{
		ID:        id,
		MessageID: env.GetHeader("Message-ID"),
		From:      env.GetHeader("From"),
		Subject:   env.GetHeader("Subject"),
		Date:      env.GetHeader("Date"),
		Body:      format.VisibleReply(full),
		FullBody:  full,
	}, nil
}

func hasPlainText(p *enmime.Part) bool {
	for ; p != nil; p = p.NextSibling {
		ct := strings.ToLower(p.ContentType)
		if (ct == "" || ct == "text/plain") && p.Disposition != "attachment" && p.FirstChild == nil {
			return true
		}
		if hasPlainText(p.FirstChild) {
			return true
		}
	}
	return false
}

// Send composes a plain-text message from the authenticated user and sends it.
func (m *Mailbox) Send(ctx context.Context, to, subject, body string) (string, error) {
	raw, err := m.compose(ctx, to, subject, body, "")
	if err != nil {
		return "", err
	}

	id, err := m.svc.SendRaw(ctx, raw, "")
	if err != nil {
		return "", fmt.Errorf("svc.SendRaw failed: %w", err)
	}

	return id, nil
}

// SaveDraft composes a plain-text message and stores it as a draft. A non-empty
// inReplyTo adds threading headers referring to that Message-ID.
func (m *Mailbox) SaveDraft(ctx context.Context, to, subject, body, inReplyTo string) (string, error) {
	raw, err := m.compose(ctx, to, subject, body, inReplyTo)
	if err != nil {
		return "", err
	}

	id, err := m.svc.CreateDraft(ctx, raw, "")
	if err != nil {
		return "", fmt.Errorf("svc.CreateDraft failed: %w", err)
	}

	return id, nil
}

func (m *Mailbox) compose(ctx context.Context, to, subject, body, inReplyTo string) ([]byte, error) {
	rcpts, err := ParseRecipients(to)
	if err != nil {
		return nil, err
	}

	from, err := m.svc.ProfileEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("svc.ProfileEmail failed: %w", err)
	}

	return Compose(from, rcpts, subject, body, inReplyTo, m.now())
}

// ParseRecipients parses an RFC 5322 address list such as "Jane <jane@example.com>, bob@example.com".
func ParseRecipients(to string) ([]mail.Address, error) {
	if strings.TrimSpace(to) == "" {
		return nil, ErrNoRecipients
	}

	list, err := mail.ParseAddressList(to)
	if err != nil {
		return nil, fmt.Errorf("mail.ParseAddressList failed: %w", err)
	}

	rcpts := make([]mail.Address, 0, len(list))
	for _, a := range list {
		rcpts = append(rcpts, *a)
	}
	if len(rcpts) == 0 {
		return nil, ErrNoRecipients
	}

	return rcpts, nil
}

// Compose renders a plain-text RFC 2822 message.
func Compose(from string, to []mail.Address, subject, body, inReplyTo string, date time.Time) ([]byte, error) {
	b := enmime.Builder().
		From("", from).
		ToAddrs(to).
		Subject(subject).
		Date(date).
		Text([]byte(body))
	if inReplyTo != "" {
		b = b.Header("In-Reply-To", inReplyTo).Header("References", inReplyTo)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("enmime.Build failed: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("part.Encode failed: %w", err)
	}

	return buf.Bytes(), nil
}
