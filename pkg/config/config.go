// Package config provides configuration loading and validation for the agent
// runtime. Configuration is a YAML file with environment variable
// substitution; API keys come from the environment, never from the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider identifiers for the LLM configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider API keys.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
)

// Defaults applied by Load when the file omits a value.
const (
	DefaultPort            = 8080
	DefaultMaxBodyBytes    = 1 << 20 // 1 MiB inbound request limit
	DefaultShutdownSec     = 10
	DefaultMaxRetries      = 3
	DefaultBaseDelayMS     = 1000
	DefaultMaxJitterMS     = 500
	DefaultLLMTimeoutSec   = 60
	DefaultHTTPTimeoutSec  = 30
	DefaultMaxTokens       = 4096
	DefaultTemperature     = 0.7
	DefaultPromptTokenWarn = 100000
)

// ServerConfig configures the transport shell.
type ServerConfig struct {
	Port               int    `yaml:"port"`
	AuthToken          string `yaml:"auth_token"` // Bearer token; empty disables auth
	MaxBodyBytes       int64  `yaml:"max_body_bytes"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

// RetryConfig configures the provider retry budget.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxJitterMS int `yaml:"max_jitter_ms"`
}

// BaseDelay returns the backoff base as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxJitter returns the per-attempt jitter bound as a duration.
func (c RetryConfig) MaxJitter() time.Duration {
	return time.Duration(c.MaxJitterMS) * time.Millisecond
}

// LLMConfig selects and configures the provider. A nil LLMConfig on Config
// means the facade is not configured: every LLM call fails without
// attempting provider initialization.
type LLMConfig struct {
	Provider        string      `yaml:"provider"` // openai | google | anthropic | ollama
	Model           string      `yaml:"model"`
	APIKey          string      `yaml:"api_key"`  // Usually "${OPENAI_API_KEY}" etc.
	BaseURL         string      `yaml:"base_url"` // Optional endpoint override
	IncludePersona  *bool       `yaml:"include_persona"`
	IncludeContext  *bool       `yaml:"include_context"`
	MaxTokens       int         `yaml:"max_tokens"`
	Temperature     float64     `yaml:"temperature"`
	TimeoutSec      int         `yaml:"timeout_sec"`
	PromptTokenWarn int         `yaml:"prompt_token_warn"`
	Retry           RetryConfig `yaml:"retry"`
}

// Timeout returns the per-call deadline for provider calls.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// PersonaIncluded returns the provider-level default for persona injection.
func (c *LLMConfig) PersonaIncluded() bool {
	return c.IncludePersona == nil || *c.IncludePersona
}

// ContextIncluded returns the provider-level default for context injection.
func (c *LLMConfig) ContextIncluded() bool {
	return c.IncludeContext == nil || *c.IncludeContext
}

// ResolveAPIKey returns the configured key, falling back to the provider's
// environment variable. Ollama needs no key.
func (c *LLMConfig) ResolveAPIKey() (string, error) {
	// An unresolved ${VAR} placeholder means the variable was unset at load
	// time; fall through to the provider default.
	if c.APIKey != "" && !strings.HasPrefix(c.APIKey, "${") {
		return c.APIKey, nil
	}

	var envVar string
	switch c.Provider {
	case ProviderOpenAI:
		envVar = EnvOpenAIKey
	case ProviderGoogle:
		envVar = EnvGeminiKey
	case ProviderAnthropic:
		envVar = EnvAnthropicKey
	case ProviderOllama:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", c.Provider)
	}

	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no API key for provider %s: set %s", c.Provider, envVar)
}

// HTTPConfig configures the tracked outbound HTTP client.
type HTTPConfig struct {
	TimeoutSec   int   `yaml:"timeout_sec"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"` // Response-body capture limit for events
}

// Timeout returns the default outbound call deadline.
func (c *HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// DebugConfig mirrors logx debug settings so they can be set from the file.
type DebugConfig struct {
	Enabled bool     `yaml:"enabled"`
	Domains []string `yaml:"domains"`
}

// Config is the root runtime configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    *LLMConfig   `yaml:"llm"`
	HTTP   HTTPConfig   `yaml:"http"`
	Debug  DebugConfig  `yaml:"debug"`
}

// Validate checks semantic constraints the YAML decoder cannot.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}

	if c.LLM != nil {
		switch c.LLM.Provider {
		case ProviderOpenAI, ProviderGoogle, ProviderAnthropic, ProviderOllama:
		default:
			return fmt.Errorf("llm.provider must be one of %s, %s, %s, %s; got %q",
				ProviderOpenAI, ProviderGoogle, ProviderAnthropic, ProviderOllama, c.LLM.Provider)
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required when llm is configured")
		}
		if c.LLM.Retry.MaxRetries < 0 {
			return fmt.Errorf("llm.retry.max_retries must be non-negative, got %d", c.LLM.Retry.MaxRetries)
		}
	}

	return nil
}
