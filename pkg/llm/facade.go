package llm

import (
	"context"
	"fmt"
	"sync"

	"agentd/pkg/config"
	"agentd/pkg/llm/api"
	"agentd/pkg/llm/internal/anthropic"
	"agentd/pkg/llm/internal/google"
	"agentd/pkg/llm/internal/ollama"
	"agentd/pkg/llm/internal/openai"
	"agentd/pkg/llmerrors"
	"agentd/pkg/metrics"
	"agentd/pkg/schema"
)

// Facade resolves the configured provider lazily, at most once, and forwards
// the four operations to it. An unconfigured facade (nil config) fails every
// call with a not-configured error and never attempts provider construction.
// Concurrent first calls observe a single resolution.
type Facade struct {
	cfg      *config.LLMConfig
	recorder metrics.Recorder

	once     sync.Once
	provider *Provider
	initErr  error

	// backendFactory overrides vendor backend construction in tests.
	backendFactory func(*config.LLMConfig) (api.Backend, error)
}

var _ Client = (*Facade)(nil)

// NewFacade creates a facade over an optional provider configuration.
// recorder may be nil to disable metrics.
func NewFacade(cfg *config.LLMConfig, recorder metrics.Recorder) *Facade {
	return &Facade{cfg: cfg, recorder: recorder}
}

// resolve constructs the provider on first use.
func (f *Facade) resolve() (*Provider, error) {
	if f.cfg == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeNotConfigured, "LLM provider is not configured")
	}
	factory := f.backendFactory
	if factory == nil {
		factory = newBackend
	}
	f.once.Do(func() {
		backend, err := factory(f.cfg)
		if err != nil {
			f.initErr = err
			return
		}
		f.provider = NewProvider(backend, f.cfg, f.recorder)
	})
	if f.initErr != nil {
		return nil, f.initErr
	}
	return f.provider, nil
}

// newBackend constructs the vendor backend selected by the configuration.
func newBackend(cfg *config.LLMConfig) (api.Backend, error) {
	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeNotConfigured, err, err.Error())
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(apiKey, cfg.Model, cfg.BaseURL), nil
	case config.ProviderGoogle:
		return google.New(apiKey, cfg.Model), nil
	case config.ProviderAnthropic:
		return anthropic.New(apiKey, cfg.Model, cfg.BaseURL), nil
	case config.ProviderOllama:
		return ollama.New(cfg.BaseURL, cfg.Model), nil
	default:
		return nil, llmerrors.NewError(llmerrors.ErrorTypeNotConfigured,
			fmt.Sprintf("unknown provider: %s", cfg.Provider))
	}
}

// Generate forwards to the resolved provider.
func (f *Facade) Generate(ctx context.Context, req Request) (string, error) {
	provider, err := f.resolve()
	if err != nil {
		return "", err
	}
	return provider.Generate(ctx, req)
}

// GenerateStructured forwards to the resolved provider.
func (f *Facade) GenerateStructured(ctx context.Context, req Request, s *schema.Schema) (any, error) {
	provider, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return provider.GenerateStructured(ctx, req, s)
}

// GenerateWithCandidates forwards to the resolved provider.
func (f *Facade) GenerateWithCandidates(ctx context.Context, req Request, count int) ([]string, error) {
	provider, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return provider.GenerateWithCandidates(ctx, req, count)
}

// GenerateStructuredWithCandidates forwards to the resolved provider.
func (f *Facade) GenerateStructuredWithCandidates(ctx context.Context, req Request, s *schema.Schema, count int) ([]any, error) {
	provider, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return provider.GenerateStructuredWithCandidates(ctx, req, s, count)
}
