package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/email-mcp/internal/mailbox"
)

const (
	defaultMaxEmails = 10
	maxEmailsLimit   = 50
)

// GetUnreadEmailsRequest contains the number of unread emails to return.
type GetUnreadEmailsRequest struct {
	MaxEmails int64 `json:"max_emails,omitempty" jsonschema:"maximum number of unread emails to fetch (default: 10)"`
}

type getUnreadEmailsSvc interface {
	GetUnread(ctx context.Context, maxEmails int64) ([]mailbox.EmailSummary, error)
}

// NewGetUnreadEmails creates a new GetUnreadEmails tool. Non-positive limits fall back to defaults.
func NewGetUnreadEmails(svc getUnreadEmailsSvc, defaultMax, limit int64) *GetUnreadEmails {
	if defaultMax <= 0 {
		defaultMax = defaultMaxEmails
	}
	if limit <= 0 {
		limit = maxEmailsLimit
	}

	return &GetUnreadEmails{
		svc:        svc,
		defaultMax: defaultMax,
		limit:      limit,
	}
}

// GetUnreadEmails lists unread inbox messages.
type GetUnreadEmails struct {
	svc        getUnreadEmailsSvc
	defaultMax int64
	limit      int64
}

// GetUnreadEmails retrieves unread emails and formats them as text.
func (t *GetUnreadEmails) GetUnreadEmails(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetUnreadEmailsRequest,
) (*mcp.CallToolResult, any, error) {
	emails, err := t.svc.GetUnread(ctx, t.normalizeMaxEmails(input.MaxEmails))
	if err != nil {
		return nil, nil, fmt.Errorf("svc.GetUnread failed: %w", err)
	}

	return textResult(formatUnread(emails)), nil, nil
}

func (t *GetUnreadEmails) normalizeMaxEmails(n int64) int64 {
	if n <= 0 {
		return t.defaultMax
	}
	if n > t.limit {
		return t.limit
	}
	return n
}

func formatUnread(emails []mailbox.EmailSummary) string {
	if len(emails) == 0 {
		return "No unread emails found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d unread email(s):\n\n", len(emails))

	for i, e := range emails {
		fmt.Fprintf(&b, "--- Email %d ---\n", i+1)
		fmt.Fprintf(&b, "From: %s\n", e.From)
		fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
		fmt.Fprintf(&b, "Date: %s\n", e.Date)
		fmt.Fprintf(&b, "Message ID: %s\n", e.MessageID)
		fmt.Fprintf(&b, "Body:\n%s\n\n", e.Body)
	}

	return b.String()
}
