// Package reply drafts answers to emails with a text-generation model.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hal9000y/email-mcp/internal/llm"
)

// ErrMissingBody is returned when the email to answer has no body.
var ErrMissingBody = errors.New("email body is required")

// DefaultTone is used when a request names none.
const DefaultTone = "professional"

type styleGuides interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Request describes the email being answered.
type Request struct {
	From              string
	Subject           string
	Date              string
	Body              string
	Tone              string
	AdditionalContext string
	StyleGuideURL     string
}

// Draft is a generated reply.
type Draft struct {
	Text string
	Tone string
	// StyleGuideNote is set when a style guide was requested but could not be fetched.
	StyleGuideNote string
}

type Option func(*Service)

// WithDefaultStyleGuide sets the URL used when a request has none.
func WithDefaultStyleGuide(url string) Option {
	return func(s *Service) { s.defaultStyleGuide = url }
}

type Service struct {
	guides            styleGuides
	gen               generator
	model             string
	maxTokens         int64
	defaultStyleGuide string
}

func NewService(guides styleGuides, gen generator, model string, maxTokens int64, opts ...Option) *Service {
	s := &Service{
		guides:    guides,
		gen:       gen,
		model:     model,
		maxTokens: maxTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft generates a reply. A style guide that cannot be fetched does not fail
// the draft; the prompt is built without it and the draft carries a note.
func (s *Service) Draft(ctx context.Context, req Request) (Draft, error) {
	if strings.TrimSpace(req.Body) == "" {
		return Draft{}, ErrMissingBody
	}
	if req.Tone == "" {
		req.Tone = DefaultTone
	}
	if req.StyleGuideURL == "" {
		req.StyleGuideURL = s.defaultStyleGuide
	}

	var (
		guide string
		note  string
	)
	if req.StyleGuideURL != "" {
		g, err := s.guides.Fetch(ctx, req.StyleGuideURL)
		if err != nil {
			log.Warn().Err(err).Str("url", req.StyleGuideURL).Msg("style guide unavailable, drafting without it")
			note = fmt.Sprintf("[Note: Could not fetch style guide: %v]", err)
		} else {
			guide = g
		}
	}

	text, err := s.gen.Generate(ctx, llm.Request{
		Prompt:    BuildPrompt(req, guide),
		Model:     s.model,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("gen.Generate failed: %w", err)
	}

	return Draft{Text: text, Tone: req.Tone, StyleGuideNote: note}, nil
}

// BuildPrompt renders the generation prompt. styleGuide is the fetched guide
// text, empty when there is none.
func BuildPrompt(req Request, styleGuide string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are helping draft a reply to an email. Generate a %s response.\n\n", req.Tone)
	b.WriteString("Original Email:\n")
	fmt.Fprintf(&b, "From: %s\n", req.From)
	fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	fmt.Fprintf(&b, "Date: %s\n\n", req.Date)
	fmt.Fprintf(&b, "Body:\n%s\n\n", req.Body)

	if req.AdditionalContext != "" {
		fmt.Fprintf(&b, "Additional Context: %s\n\n", req.AdditionalContext)
	}

	hasGuide := strings.TrimSpace(styleGuide) != ""
	if hasGuide {
		fmt.Fprintf(&b, "Style Guide:\n%s\n\n", styleGuide)
	}

	fmt.Fprintf(&b, "Please generate a clear, concise, and %s reply to this email. ", req.Tone)
	if hasGuide {
		b.WriteString("Follow the style guide above. ")
	}
	b.WriteString(`Only provide the email body text, without any subject line or greetings like "Dear [Name]" unless specifically needed for the context.`)

	return b.String()
}
