package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SendEmailRequest contains the recipient, subject and body of a new email.
type SendEmailRequest struct {
	To      string `json:"to" jsonschema:"recipient email address"`
	Subject string `json:"subject" jsonschema:"email subject"`
	Body    string `json:"body" jsonschema:"email body content"`
}

type sendEmailSvc interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// NewSendEmail creates a new SendEmail tool.
func NewSendEmail(svc sendEmailSvc) *SendEmail {
	return &SendEmail{
		svc: svc,
	}
}

// SendEmail sends plain-text emails from the authenticated account.
type SendEmail struct {
	svc sendEmailSvc
}

// SendEmail composes and sends one email.
func (t *SendEmail) SendEmail(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SendEmailRequest,
) (*mcp.CallToolResult, any, error) {
	if err := requireArgs("to", input.To, "subject", input.Subject, "body", input.Body); err != nil {
		return nil, nil, err
	}

	if _, err := t.svc.Send(ctx, input.To, input.Subject, input.Body); err != nil {
		return nil, nil, fmt.Errorf("svc.Send failed: %w", err)
	}

	return textResult(fmt.Sprintf("✓ Email sent to %s", input.To)), nil, nil
}
