// Package llm generates text from a prompt through a hosted model API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hal9000y/email-mcp/internal/metrics"
	"github.com/hal9000y/email-mcp/internal/retry"
)

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("empty response from model")

// Provider names accepted by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const collaborator = "llm"

// Request is a single prompt.
type Request struct {
	Prompt    string
	Model     string
	MaxTokens int64
}

// Generator returns the first text segment produced for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string // empty means the provider's public endpoint
}

// New builds the generator for cfg.Provider. SDK retries are disabled, wrap the
// result with WithRetry to apply a policy.
func New(cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderAnthropic, "":
		return NewAnthropic(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// WithRetry runs every Generate through the retry policy and records the outcome.
func WithRetry(g Generator, p retry.Policy, m *metrics.Metrics) Generator {
	if p.OnRetry == nil {
		p.OnRetry = func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("wait", wait).Str("collaborator", collaborator).Msg("retrying call")
		}
	}
	return &retrying{next: g, policy: p, metrics: m}
}

type retrying struct {
	next    Generator
	policy  retry.Policy
	metrics *metrics.Metrics
}

func (r *retrying) Generate(ctx context.Context, req Request) (string, error) {
	text, err := retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.next.Generate(ctx, req)
	})
	r.metrics.ExternalCall(collaborator, err)

	return text, err
}

// classify marks client errors as final. status is zero when err carries no HTTP response.
func classify(err error, status int) error {
	if status != 0 && !retry.RetryableStatus(status) {
		return retry.Permanent(err)
	}
	return err
}
