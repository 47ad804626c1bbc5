package tool

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/hal9000y/email-mcp/internal/metrics"
)

// instrumented logs and counts every call of a tool handler.
func instrumented[In any](
	name string,
	m *metrics.Metrics,
	handler func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error),
) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		res, out, err := handler(ctx, req, input)
		d := time.Since(start)

		m.ToolCall(name, err, d)

		if err != nil {
			log.Error().Err(err).Str("tool", name).Str("status", metrics.StatusError).Dur("duration", d).Msg("tool call failed")
		} else {
			log.Info().Str("tool", name).Str("status", metrics.StatusSuccess).Dur("duration", d).Msg("tool call")
		}

		return res, out, err
	}
}
