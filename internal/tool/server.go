package tool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/email-mcp/internal/metrics"
)

// ErrMissingArgument is returned when a required tool argument is empty.
var ErrMissingArgument = errors.New("missing required argument")

type mailSvc interface {
	sendEmailSvc
	getUnreadEmailsSvc
	saveDraftSvc
}

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	Metrics          *metrics.Metrics
	DefaultMaxEmails int64
	MaxEmailsLimit   int64
	Version          string
}

// NewServer creates an MCP server with the email tools.
func NewServer(mb mailSvc, drafter drafter, opts Options) *mcp.Server {
	if opts.Version == "" {
		opts.Version = "v1.0.0"
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "email-server", Version: opts.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_email",
		Description: "Send an email",
	}, instrumented("send_email", opts.Metrics, NewSendEmail(mb).SendEmail))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_unread_emails",
		Description: "Fetch unread emails from Gmail inbox",
	}, instrumented("get_unread_emails", opts.Metrics,
		NewGetUnreadEmails(mb, opts.DefaultMaxEmails, opts.MaxEmailsLimit).GetUnreadEmails))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_draft_reply",
		Description: "Generate an AI-powered draft reply to an email, optionally following a style guide fetched from a URL",
	}, instrumented("generate_draft_reply", opts.Metrics, NewGenerateDraftReply(drafter).GenerateDraftReply))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_draft",
		Description: "Save a draft email to Gmail",
	}, instrumented("save_draft", opts.Metrics, NewSaveDraft(mb).SaveDraft))

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// requireArgs checks name/value pairs and reports the first blank value.
func requireArgs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingArgument, pairs[i])
		}
	}
	return nil
}
