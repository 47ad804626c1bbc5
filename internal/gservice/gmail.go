// Package gservice wraps the Gmail API calls used by the mailbox.
package gservice

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hal9000y/email-mcp/internal/metrics"
	"github.com/hal9000y/email-mcp/internal/retry"
)

const (
	gmailUserID = "me"

	// UnreadInboxQuery selects unread messages in the inbox.
	UnreadInboxQuery = "is:unread in:inbox"

	collaborator = "gmail"
)

// ClientFunc returns an authorized HTTP client, usually auth.Token.HTTPClient.
type ClientFunc func(ctx context.Context) (*http.Client, error)

// NewGmail builds the wrapper. Extra options are appended when the service is
// created and can point it to another endpoint.
func NewGmail(client ClientFunc, policy retry.Policy, m *metrics.Metrics, opts ...option.ClientOption) *GMail {
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("wait", wait).Str("collaborator", collaborator).Msg("retrying call")
		}
	}

	return &GMail{
		client:  client,
		opts:    opts,
		policy:  policy,
		metrics: m,
	}
}

type GMail struct {
	client  ClientFunc
	opts    []option.ClientOption
	policy  retry.Policy
	metrics *metrics.Metrics
}

// ListUnread returns IDs of at most maxResults unread inbox messages, newest first.
func (m *GMail) ListUnread(ctx context.Context, maxResults int64) ([]string, error) {
	return call(ctx, m, func(ctx context.Context, svc *gmail.Service) ([]string, error) {
		res, err := svc.Users.Messages.List(gmailUserID).
			Q(UnreadInboxQuery).
			MaxResults(maxResults).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("messages.List failed: %w", err)
		}

		ids := make([]string, 0, len(res.Messages))
		for _, msg := range res.Messages {
			ids = append(ids, msg.Id)
		}

		return ids, nil
	})
}

// GetRawMessage returns the RFC 2822 source of a message.
func (m *GMail) GetRawMessage(ctx context.Context, msgID string) ([]byte, error) {
	return call(ctx, m, func(ctx context.Context, svc *gmail.Service) ([]byte, error) {
		msg, err := svc.Users.Messages.Get(gmailUserID, msgID).
			Format("raw").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("messages.Get failed: %w", err)
		}

		raw, err := decodeRaw(msg.Raw)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("decodeRaw failed for %s: %w", msgID, err))
		}

		return raw, nil
	})
}

// SendRaw sends an RFC 2822 message and returns the new message ID.
// threadID may be empty. The call is never repeated: a timed out attempt may
// still have been delivered.
func (m *GMail) SendRaw(ctx context.Context, raw []byte, threadID string) (string, error) {
	return callOnce(ctx, m, func(ctx context.Context, svc *gmail.Service) (string, error) {
		msg, err := svc.Users.Messages.Send(gmailUserID, encodeRaw(raw, threadID)).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("messages.Send failed: %w", err)
		}

		return msg.Id, nil
	})
}

// CreateDraft stores an RFC 2822 message as a draft and returns the draft ID.
// Like SendRaw it makes a single attempt.
func (m *GMail) CreateDraft(ctx context.Context, raw []byte, threadID string) (string, error) {
	return callOnce(ctx, m, func(ctx context.Context, svc *gmail.Service) (string, error) {
		draft, err := svc.Users.Drafts.Create(gmailUserID, &gmail.Draft{Message: encodeRaw(raw, threadID)}).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("drafts.Create failed: %w", err)
		}

		return draft.Id, nil
	})
}

// ProfileEmail returns the address of the authenticated user.
func (m *GMail) ProfileEmail(ctx context.Context) (string, error) {
	return call(ctx, m, func(ctx context.Context, svc *gmail.Service) (string, error) {
		p, err := svc.Users.GetProfile(gmailUserID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("users.GetProfile failed: %w", err)
		}

		return p.EmailAddress, nil
	})
}

func call[T any](ctx context.Context, m *GMail, fn func(context.Context, *gmail.Service) (T, error)) (T, error) {
	return callWith(ctx, m, m.policy, fn)
}

// callOnce keeps the per-attempt timeout but drops retries, for calls that
// change the mailbox.
func callOnce[T any](ctx context.Context, m *GMail, fn func(context.Context, *gmail.Service) (T, error)) (T, error) {
	p := m.policy
	p.MaxRetries = 0
	return callWith(ctx, m, p, fn)
}

func callWith[T any](ctx context.Context, m *GMail, p retry.Policy, fn func(context.Context, *gmail.Service) (T, error)) (T, error) {
	v, err := retry.Do(ctx, p, func(ctx context.Context) (T, error) {
		svc, err := m.newSvc(ctx)
		if err != nil {
			var zero T
			return zero, retry.Permanent(fmt.Errorf("newSvc failed: %w", err))
		}

		return fn(ctx, svc)
	})
	m.metrics.ExternalCall(collaborator, err)

	return v, err
}

func (m *GMail) newSvc(ctx context.Context) (*gmail.Service, error) {
	clt, err := m.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("client failed: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(clt)}, m.opts...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail.NewService failed: %w", err)
	}

	return svc, nil
}

func encodeRaw(raw []byte, threadID string) *gmail.Message {
	return &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}
}

// decodeRaw accepts both padded and unpadded base64url.
func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}

	return base64.RawURLEncoding.DecodeString(s)
}
