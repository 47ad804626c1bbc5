package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SaveDraftRequest contains the draft fields and an optional message to reply to.
type SaveDraftRequest struct {
	To        string `json:"to" jsonschema:"recipient email address"`
	Subject   string `json:"subject" jsonschema:"email subject"`
	Body      string `json:"body" jsonschema:"email body content"`
	InReplyTo string `json:"in_reply_to,omitempty" jsonschema:"Message-ID of the email being replied to"`
}

type saveDraftSvc interface {
	SaveDraft(ctx context.Context, to, subject, body, inReplyTo string) (string, error)
}

// NewSaveDraft creates a new SaveDraft tool.
func NewSaveDraft(svc saveDraftSvc) *SaveDraft {
	return &SaveDraft{
		svc: svc,
	}
}

// SaveDraft stores drafts in the mailbox.
type SaveDraft struct {
	svc saveDraftSvc
}

// SaveDraft composes a message and saves it as a draft.
func (t *SaveDraft) SaveDraft(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SaveDraftRequest,
) (*mcp.CallToolResult, any, error) {
	if err := requireArgs("to", input.To, "subject", input.Subject, "body", input.Body); err != nil {
		return nil, nil, err
	}

	if _, err := t.svc.SaveDraft(ctx, input.To, input.Subject, input.Body, input.InReplyTo); err != nil {
		return nil, nil, fmt.Errorf("svc.SaveDraft failed: %w", err)
	}

	return textResult(fmt.Sprintf("✓ Draft saved to Gmail for %s", input.To)), nil, nil
}
