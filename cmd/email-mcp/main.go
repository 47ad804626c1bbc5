// Email MCP server sends mail, lists unread messages and drafts replies through Model Context Protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hal9000y/email-mcp/internal/auth"
	"github.com/hal9000y/email-mcp/internal/config"
	"github.com/hal9000y/email-mcp/internal/gservice"
	"github.com/hal9000y/email-mcp/internal/llm"
	"github.com/hal9000y/email-mcp/internal/mailbox"
	"github.com/hal9000y/email-mcp/internal/metrics"
	"github.com/hal9000y/email-mcp/internal/reply"
	"github.com/hal9000y/email-mcp/internal/retry"
	"github.com/hal9000y/email-mcp/internal/styleguide"
	"github.com/hal9000y/email-mcp/internal/tool"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

type flags struct {
	httpAddr       string
	oauthTokenFile string
	oauthURL       string
	envFile        string
	configPath     string
	logFile        string
	stdio          bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:          "email-mcp",
		Short:        "MCP server for sending mail, reading unread mail and drafting replies",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.httpAddr, "http-addr", "localhost:0", "HTTP server listen addr")
	fs.StringVar(&f.oauthTokenFile, "oauth-token-file", "./data/email-mcp-token.json", "Path to cache google oauth token, empty to avoid storing")
	fs.StringVar(&f.oauthURL, "oauth-url", "", "OAuth redirect URL, defaults to the /oauth endpoint of the HTTP server")
	fs.StringVar(&f.envFile, "env-file", "", "Path to env file")
	fs.StringVar(&f.configPath, "config", "", "Path to TOML config file")
	fs.BoolVar(&f.stdio, "stdio", false, "Enable stdio transport for MCP (disables stdout logging)")
	fs.StringVar(&f.logFile, "log-file", "", "Path to log file, otherwise logs go to stdout unless stdio is enabled")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("email-mcp version %s\n", version)
		},
	})

	return cmd
}

func run(ctx context.Context, f *flags) error {
	closeLogs, err := setupLogger(f.stdio, f.logFile)
	if err != nil {
		return err
	}
	defer closeLogs()

	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return fmt.Errorf("config.Load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cfg.Validate failed: %w", err)
	}

	ln, err := net.Listen("tcp", f.httpAddr)
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}

	oauthURL := fmt.Sprintf("http://%s/oauth", ln.Addr().String())
	if f.oauthURL != "" {
		oauthURL = f.oauthURL
	}
	oauthCfg := auth.NewConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, oauthURL)

	tok, err := auth.NewToken(oauthCfg, f.oauthTokenFile)
	if err != nil {
		return fmt.Errorf("auth.NewToken failed: %w", err)
	}

	defer func() {
		log.Info().Msg("persisting token if exists")
		if err := tok.Persist(); err != nil {
			log.Error().Err(err).Msg("tok.Persist failed")
		}
	}()

	m := metrics.New()

	emailT, err := newEmailServer(cfg, tok, m)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/oauth", auth.NewHTTPHandler(tok))
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return emailT }, nil))
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
		openBrowser(oauthCfg.RedirectURL)
	}

	stopHTTP, errHTTPCh := serveHTTP(srv, ln)
	defer stopHTTP()

	var errStdioCh <-chan error
	if f.stdio {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(ctx, emailT)
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		log.Error().Err(err).Msg("http server stopped")
	case err := <-errStdioCh:
		log.Error().Err(err).Msg("stdio transport stopped")
	case <-shutdown:
		log.Info().Msg("shutdown signal received")
	}

	return nil
}

// newEmailServer wires the collaborators behind the MCP tools.
func newEmailServer(cfg *config.Config, tok *auth.Token, m *metrics.Metrics) (*mcp.Server, error) {
	policy := retry.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}

	gmailPolicy := policy
	gmailPolicy.Timeout = cfg.Gmail.Timeout
	mb := mailbox.New(gservice.NewGmail(tok.HTTPClient, gmailPolicy, m))

	gen, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.APIKey(),
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("llm.New failed: %w", err)
	}
	llmPolicy := policy
	llmPolicy.Timeout = cfg.LLM.Timeout
	gen = llm.WithRetry(gen, llmPolicy, m)

	guidePolicy := policy
	guidePolicy.Timeout = cfg.StyleGuide.FetchTimeout
	guides := styleguide.NewCache(
		styleguide.NewHTTPFetcher(cfg.StyleGuide.FetchTimeout, guidePolicy, m),
		cfg.StyleGuide.TTL,
		styleguide.WithCapacity(cfg.StyleGuide.Capacity),
		styleguide.WithMetrics(m),
	)

	drafter := reply.NewService(guides, gen, cfg.LLM.Model, cfg.LLM.MaxTokens,
		reply.WithDefaultStyleGuide(cfg.StyleGuide.URL))

	return tool.NewServer(mb, drafter, tool.Options{
		Metrics:          m,
		DefaultMaxEmails: cfg.Gmail.DefaultMaxEmails,
		MaxEmailsLimit:   cfg.Gmail.MaxEmailsLimit,
		Version:          version,
	}), nil
}

func serveStdio(ctx context.Context, srv *mcp.Server) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(errStdioCh)
		log.Info().Msg("starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			errStdioCh <- fmt.Errorf("srv.Run failed: %w", err)
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		log.Info().Msg("stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(srv *http.Server, ln net.Listener) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		log.Info().Str("addr", ln.Addr().String()).Msg("starting http server")

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errHTTPCh <- fmt.Errorf("srv.Serve failed: %w", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("srv.Shutdown failed")
		}

		<-errHTTPCh
		log.Info().Msg("http server stopped")
	}, errHTTPCh
}

// setupLogger keeps stdout free for the protocol when stdio is enabled.
func setupLogger(stdio bool, logFile string) (func(), error) {
	zerolog.TimeFieldFormat = time.RFC3339

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()

		return func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "f.Close failed: %v\n", err)
			}
		}, nil
	}

	if stdio {
		log.Logger = zerolog.Nop()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	return func() {}, nil
}

func openBrowser(url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("could not open browser automatically, please open the link manually")
	}
}
