package tool_test

import (
	"context"
	"sync"

	"github.com/hal9000y/email-mcp/internal/mailbox"
	"github.com/hal9000y/email-mcp/internal/reply"
)

type mailboxMock struct {
	GetUnreadFunc func(ctx context.Context, maxEmails int64) ([]mailbox.EmailSummary, error)
	SendFunc      func(ctx context.Context, to, subject, body string) (string, error)
	SaveDraftFunc func(ctx context.Context, to, subject, body, inReplyTo string) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *mailboxMock) called() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

// Calls returns how many mailbox methods were invoked.
func (m *mailboxMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mailboxMock) GetUnread(ctx context.Context, maxEmails int64) ([]mailbox.EmailSummary, error) {
	m.called()
	return m.GetUnreadFunc(ctx, maxEmails)
}

func (m *mailboxMock) Send(ctx context.Context, to, subject, body string) (string, error) {
	m.called()
	return m.SendFunc(ctx, to, subject, body)
}

func (m *mailboxMock) SaveDraft(ctx context.Context, to, subject, body, inReplyTo string) (string, error) {
	m.called()
	return m.SaveDraftFunc(ctx, to, subject, body, inReplyTo)
}

type drafterMock struct {
	DraftFunc func(ctx context.Context, req reply.Request) (reply.Draft, error)

	mu    sync.Mutex
	calls int
}

func (m *drafterMock) Draft(ctx context.Context, req reply.Request) (reply.Draft, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.DraftFunc(ctx, req)
}

func (m *drafterMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
