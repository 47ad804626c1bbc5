// Package config loads email-mcp settings from defaults, an optional TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvGoogleClientID     = "OAUTH_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "OAUTH_GOOGLE_CLIENT_SECRET"
	EnvAnthropicAPIKey    = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey       = "OPENAI_API_KEY"
	EnvLLMProvider        = "EMAIL_MCP_LLM_PROVIDER"
	EnvStyleGuideURL      = "EMAIL_MCP_STYLE_GUIDE_URL"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

// Config is the full server configuration.
type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	StyleGuide StyleGuideConfig `toml:"style_guide"`
	Gmail      GmailConfig      `toml:"gmail"`
	Retry      RetryConfig      `toml:"retry"`

	// Secrets come from the environment only.
	GoogleClientID     string `toml:"-"`
	GoogleClientSecret string `toml:"-"`
	AnthropicAPIKey    string `toml:"-"`
	OpenAIAPIKey       string `toml:"-"`
}

// LLMConfig selects and tunes the text-generation provider.
type LLMConfig struct {
	Provider  string        `toml:"provider"` // "anthropic" or "openai"
	Model     string        `toml:"model"`
	MaxTokens int64         `toml:"max_tokens"`
	BaseURL   string        `toml:"base_url"`
	Timeout   time.Duration `toml:"timeout"`
}

// StyleGuideConfig tunes the style guide cache and its HTTP fetches.
type StyleGuideConfig struct {
	URL          string        `toml:"url"` // used when a draft request names no URL
	TTL          time.Duration `toml:"ttl"`
	Capacity     int           `toml:"capacity"` // 1 keeps a single slot
	FetchTimeout time.Duration `toml:"fetch_timeout"`
}

// GmailConfig tunes Gmail API calls.
type GmailConfig struct {
	Timeout          time.Duration `toml:"timeout"`
	DefaultMaxEmails int64         `toml:"default_max_emails"`
	MaxEmailsLimit   int64         `toml:"max_emails_limit"`
}

// RetryConfig is the retry policy applied at every collaborator boundary.
type RetryConfig struct {
	MaxRetries      uint          `toml:"max_retries"`
	InitialInterval time.Duration `toml:"initial_interval"`
	MaxInterval     time.Duration `toml:"max_interval"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     DefaultAnthropicModel,
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		StyleGuide: StyleGuideConfig{
			TTL:          time.Hour,
			Capacity:     1,
			FetchTimeout: 10 * time.Second,
		},
		Gmail: GmailConfig{
			Timeout:          30 * time.Second,
			DefaultMaxEmails: 10,
			MaxEmailsLimit:   50,
		},
		Retry: RetryConfig{
			MaxRetries:      1,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// Load builds the configuration. An empty path or a missing file means defaults;
// envFile, when set, is loaded into the process environment before secrets are read.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("toml.DecodeFile failed: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("os.Stat failed: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("godotenv.Load failed: %w", err)
		}
	}

	cfg.GoogleClientID = os.Getenv(EnvGoogleClientID)
	cfg.GoogleClientSecret = os.Getenv(EnvGoogleClientSecret)
	cfg.AnthropicAPIKey = os.Getenv(EnvAnthropicAPIKey)
	cfg.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)

	if v := os.Getenv(EnvLLMProvider); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv(EnvStyleGuideURL); v != "" {
		cfg.StyleGuide.URL = v
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.Model == DefaultAnthropicModel {
		cfg.LLM.Model = DefaultOpenAIModel
	}

	return cfg, nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("env variables %s and %s must be set", EnvGoogleClientID, EnvGoogleClientSecret)
	}

	switch c.LLM.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("env variable %s must be set for provider %q", EnvAnthropicAPIKey, c.LLM.Provider)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("env variable %s must be set for provider %q", EnvOpenAIAPIKey, c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if c.StyleGuide.Capacity < 1 {
		return errors.New("style_guide.capacity must be at least 1")
	}
	if c.StyleGuide.TTL <= 0 {
		return errors.New("style_guide.ttl must be positive")
	}
	if c.Gmail.DefaultMaxEmails <= 0 || c.Gmail.MaxEmailsLimit < c.Gmail.DefaultMaxEmails {
		return errors.New("gmail.default_max_emails must be positive and not exceed gmail.max_emails_limit")
	}

	return nil
}

// APIKey returns the key for the configured LLM provider.
func (c *Config) APIKey() string {
	if c.LLM.Provider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}
