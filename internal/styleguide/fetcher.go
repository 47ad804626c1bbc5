package styleguide

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hal9000y/email-mcp/internal/metrics"
	"github.com/hal9000y/email-mcp/internal/retry"
)

const (
	collaborator = "style_guide"
	maxBodySize  = 1 << 20
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTPFetcher downloads style guides with plain GET requests.
type HTTPFetcher struct {
	client  *http.Client
	policy  retry.Policy
	metrics *metrics.Metrics
}

// NewHTTPFetcher bounds every request by timeout and retries per policy.
func NewHTTPFetcher(timeout time.Duration, policy retry.Policy, m *metrics.Metrics) *HTTPFetcher {
	if policy.OnRetry == nil {
		policy.OnRetry = func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("wait", wait).Str("collaborator", collaborator).Msg("retrying call")
		}
	}

	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		metrics: m,
	}
}

func (f *HTTPFetcher) Get(ctx context.Context, url string) (string, error) {
	body, err := retry.Do(ctx, f.policy, func(ctx context.Context) (string, error) {
		return f.get(ctx, url)
	})
	f.metrics.ExternalCall(collaborator, err)

	return body, err
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("http.NewRequest failed: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("client.Do failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if !retry.RetryableStatus(resp.StatusCode) {
			return "", retry.Permanent(statusErr)
		}
		return "", statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("io.ReadAll failed: %w", err)
	}

	return string(body), nil
}
