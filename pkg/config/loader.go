package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, substitutes, defaults, and validates a YAML config file.
// `${VAR}` placeholders are replaced with the environment value when set;
// unset placeholders are left untouched so validation can report them.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes. Split from Load for tests.
func Parse(data []byte) (*Config, error) {
	substituted := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = DefaultShutdownSec
	}

	if cfg.HTTP.TimeoutSec == 0 {
		cfg.HTTP.TimeoutSec = DefaultHTTPTimeoutSec
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.LLM != nil {
		if cfg.LLM.MaxTokens == 0 {
			cfg.LLM.MaxTokens = DefaultMaxTokens
		}
		if cfg.LLM.Temperature == 0 {
			cfg.LLM.Temperature = DefaultTemperature
		}
		if cfg.LLM.TimeoutSec == 0 {
			cfg.LLM.TimeoutSec = DefaultLLMTimeoutSec
		}
		if cfg.LLM.PromptTokenWarn == 0 {
			cfg.LLM.PromptTokenWarn = DefaultPromptTokenWarn
		}
		if cfg.LLM.Retry.MaxRetries == 0 {
			cfg.LLM.Retry.MaxRetries = DefaultMaxRetries
		}
		if cfg.LLM.Retry.BaseDelayMS == 0 {
			cfg.LLM.Retry.BaseDelayMS = DefaultBaseDelayMS
		}
		if cfg.LLM.Retry.MaxJitterMS == 0 {
			cfg.LLM.Retry.MaxJitterMS = DefaultMaxJitterMS
		}
	}
}
