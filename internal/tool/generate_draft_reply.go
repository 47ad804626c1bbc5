package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/email-mcp/internal/reply"
)

// GenerateDraftReplyRequest contains the email to reply to and drafting options.
type GenerateDraftReplyRequest struct {
	EmailBody         string `json:"email_body" jsonschema:"the body of the email to reply to"`
	EmailFrom         string `json:"email_from,omitempty" jsonschema:"the sender of the email to reply to"`
	EmailSubject      string `json:"email_subject,omitempty" jsonschema:"the subject of the email to reply to"`
	EmailDate         string `json:"email_date,omitempty" jsonschema:"the date of the email to reply to"`
	Tone              string `json:"tone,omitempty" jsonschema:"the tone of the reply, e.g. professional, casual, friendly (default: professional)"`
	AdditionalContext string `json:"additional_context,omitempty" jsonschema:"additional context or instructions for the reply"`
	StyleGuideURL     string `json:"style_guide_url,omitempty" jsonschema:"URL of a plain-text style guide the reply should follow"`
}

type drafter interface {
	Draft(ctx context.Context, req reply.Request) (reply.Draft, error)
}

// NewGenerateDraftReply creates a new GenerateDraftReply tool.
func NewGenerateDraftReply(svc drafter) *GenerateDraftReply {
	return &GenerateDraftReply{
		svc: svc,
	}
}

// GenerateDraftReply drafts replies with a text-generation model.
type GenerateDraftReply struct {
	svc drafter
}

// GenerateDraftReply drafts a reply to the given email.
func (t *GenerateDraftReply) GenerateDraftReply(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GenerateDraftReplyRequest,
) (*mcp.CallToolResult, any, error) {
	if err := requireArgs("email_body", input.EmailBody); err != nil {
		return nil, nil, err
	}

	draft, err := t.svc.Draft(ctx, reply.Request{
		From:              valueOr(input.EmailFrom, "Unknown"),
		Subject:           valueOr(input.EmailSubject, "No subject"),
		Date:              input.EmailDate,
		Body:              input.EmailBody,
		Tone:              input.Tone,
		AdditionalContext: input.AdditionalContext,
		StyleGuideURL:     input.StyleGuideURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("svc.Draft failed: %w", err)
	}

	text := fmt.Sprintf("Generated Draft Reply:\n\n%s\n\n(Tone: %s)", draft.Text, draft.Tone)
	if draft.StyleGuideNote != "" {
		text += "\n" + draft.StyleGuideNote
	}

	return textResult(text), nil, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
