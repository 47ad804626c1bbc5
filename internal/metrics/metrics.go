// Package metrics holds the Prometheus collectors of the email MCP server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "email_mcp"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Cache result label values.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics records tool calls, style guide cache lookups and external calls.
type Metrics struct {
	registry      *prometheus.Registry
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	externalCalls *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Number of MCP tool calls by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of MCP tool calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "style_guide_cache_total",
			Help:      "Style guide cache lookups by result.",
		}, []string{"result"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to external collaborators by collaborator and status.",
		}, []string{"collaborator", "status"}),
	}

	m.registry.MustRegister(m.toolCalls, m.toolDuration, m.cacheLookups, m.externalCalls)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ToolCall records one finished tool call.
func (m *Metrics) ToolCall(tool string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status(err)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// CacheLookup records a style guide cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ExternalCall records one call against a collaborator such as "gmail" or "llm".
func (m *Metrics) ExternalCall(collaborator string, err error) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(collaborator, status(err)).Inc()
}

// ToolCalls returns the counter vector, mostly for tests.
func (m *Metrics) ToolCalls() *prometheus.CounterVec { return m.toolCalls }

// CacheLookups returns the counter vector, mostly for tests.
func (m *Metrics) CacheLookups() *prometheus.CounterVec { return m.cacheLookups }

// ExternalCalls returns the counter vector, mostly for tests.
func (m *Metrics) ExternalCalls() *prometheus.CounterVec { return m.externalCalls }

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
