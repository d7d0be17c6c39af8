// Package llm implements the provider-abstracted LLM invocation layer: a
// shared operation core over vendor backends, plus a lazily resolved facade.
//
// The core owns everything vendors have in common: system instruction
// composition, message translation, retry with backoff, per-call timing,
// schema validation for structured operations, and call-event emission. One
// logical call appends exactly one event to the request's sink no matter how
// many retry attempts ran underneath.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"agentd/pkg/config"
	"agentd/pkg/events"
	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/prompt"
	"agentd/pkg/proto"
	"agentd/pkg/retry"
	"agentd/pkg/schema"
	"agentd/pkg/timing"
	"agentd/pkg/tokens"
)

// Request carries the per-call inputs shared by all four operations.
type Request struct {
	Messages    []proto.Message
	Instruction string         // Explicit system instruction; may be empty
	Persona     *proto.Persona // Optional persona for the instruction envelope
	Context     string         // Optional free-text context

	// IncludePersona / IncludeContext override the provider-level defaults
	// when non-nil.
	IncludePersona *bool
	IncludeContext *bool

	// Params is an optional vendor-specific parameter bag passed through to
	// the backend untouched.
	Params map[string]any

	// Sink receives exactly one call event per logical call. A nil sink
	// disables emission.
	Sink *events.Sink
}

// Client is the provider capability set. Implementations are safe for
// concurrent use; all per-request state travels in the Request.
type Client interface {
	// Generate produces a single text completion.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStructured produces a single value conforming to the supplied
	// schema. A non-conformant response is a terminal error.
	GenerateStructured(ctx context.Context, req Request, s *schema.Schema) (any, error)

	// GenerateWithCandidates produces count independent text completions in
	// provider order.
	GenerateWithCandidates(ctx context.Context, req Request, count int) ([]string, error)

	// GenerateStructuredWithCandidates produces up to count schema-conformant
	// values. Candidates failing validation are dropped with a warning; the
	// call fails only when none survive.
	GenerateStructuredWithCandidates(ctx context.Context, req Request, s *schema.Schema, count int) ([]any, error)
}

// Provider is the operation core bound to one vendor backend. One Provider
// is constructed per process and shared across requests.
type Provider struct {
	backend  api.Backend
	cfg      *config.LLMConfig
	policy   retry.Policy
	logger   *logx.Logger
	counter  *tokens.Counter
	recorder metrics.Recorder
}

var _ Client = (*Provider)(nil)

// NewProvider creates the operation core over a backend. recorder may be nil
// to disable metrics; the token counter falls back to approximate counting
// when the tokenizer is unavailable.
func NewProvider(backend api.Backend, cfg *config.LLMConfig, recorder metrics.Recorder) *Provider {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	counter, err := tokens.NewCounter()
	logger := logx.NewLogger("llm")
	if err != nil {
		logger.Warn("tokenizer unavailable, using approximate token counts: %v", err)
	}
	return &Provider{
		backend: backend,
		cfg:     cfg,
		policy: retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxJitter:  cfg.Retry.MaxJitter(),
		},
		logger:   logger,
		counter:  counter,
		recorder: recorder,
	}
}

// Generate produces a single text completion.
func (p *Provider) Generate(ctx context.Context, req Request) (string, error) {
	candidates, err := p.execute(ctx, "generate", req, nil, 1)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

// GenerateStructured produces a single schema-conformant value.
func (p *Provider) GenerateStructured(ctx context.Context, req Request, s *schema.Schema) (any, error) {
	candidates, err := p.execute(ctx, "generate_structured", req, s, 1)
	if err != nil {
		return nil, err
	}
	value, verr := s.ValidateText(candidates[0])
	if verr != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeSchemaValidation, verr,
			fmt.Sprintf("structured response failed schema validation: %v", verr))
	}
	return value, nil
}

// GenerateWithCandidates produces count independent text completions.
func (p *Provider) GenerateWithCandidates(ctx context.Context, req Request, count int) ([]string, error) {
	return p.execute(ctx, "generate_with_candidates", req, nil, count)
}

// GenerateStructuredWithCandidates produces up to count schema-conformant
// values, dropping candidates that fail validation.
func (p *Provider) GenerateStructuredWithCandidates(ctx context.Context, req Request, s *schema.Schema, count int) ([]any, error) {
	candidates, err := p.execute(ctx, "generate_structured_with_candidates", req, s, count)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(candidates))
	for i, text := range candidates {
		value, verr := s.ValidateText(text)
		if verr != nil {
			p.logger.Warn("dropping candidate %d/%d: schema validation failed: %v", i+1, len(candidates), verr)
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeNoValidCandidates,
			fmt.Sprintf("all %d candidates failed schema validation", len(candidates)))
	}
	return values, nil
}

// execute runs one logical call: compose the instruction, translate messages,
// invoke the backend through the retry layer with a per-attempt deadline, and
// append exactly one event to the sink. On success the returned slice is
// non-empty; an empty vendor result is reported as a no-content error with an
// error-marked event.
func (p *Provider) execute(ctx context.Context, operation string, req Request, s *schema.Schema, count int) ([]string, error) {
	if count < 1 {
		count = 1
	}

	includePersona := p.cfg.PersonaIncluded()
	if req.IncludePersona != nil {
		includePersona = *req.IncludePersona
	}
	includeContext := p.cfg.ContextIncluded()
	if req.IncludeContext != nil {
		includeContext = *req.IncludeContext
	}
	system := prompt.Build(req.Instruction, includePersona, includeContext, req.Persona, req.Context)

	apiReq := api.Request{
		Turns:       translateMessages(req.Messages),
		System:      system,
		Candidates:  count,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Params:      req.Params,
	}
	if s != nil {
		apiReq.Schema = s.Raw()
		doc, err := s.Document()
		if err != nil {
			return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "invalid response schema")
		}
		apiReq.SchemaDoc = doc
	}

	promptText := serializePrompt(req.Messages, system, apiReq.Schema)
	if p.cfg.PromptTokenWarn > 0 && p.counter.ExceedsLimit(promptText, p.cfg.PromptTokenWarn) {
		p.logger.Warn("prompt exceeds %d tokens (model %s)", p.cfg.PromptTokenWarn, p.backend.Model())
	}

	result := timing.Measure(ctx, func(ctx context.Context) ([]string, error) {
		return retry.Do(ctx, p.policy, p.logger, nil, func(ctx context.Context) ([]string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
			defer cancel()
			return p.backend.Complete(attemptCtx, apiReq)
		})
	})

	candidates := result.Value
	err := result.Err
	if err == nil && len(candidates) == 0 {
		err = llmerrors.NewError(llmerrors.ErrorTypeNoContent, "no content received from provider")
	}

	p.recorder.ObserveLLMCall(p.backend.Provider(), p.backend.Model(), operation,
		err == nil, errorTypeLabel(err), result.Duration)

	if err != nil {
		p.appendEvent(req.Sink, promptText, "Error: "+err.Error(), result.Duration.Milliseconds())
		return nil, err
	}
	if len(candidates) < count {
		p.logger.Warn("provider returned %d of %d requested candidates (model %s)",
			len(candidates), count, p.backend.Model())
	}

	p.appendEvent(req.Sink, promptText, serializeResponse(candidates), result.Duration.Milliseconds())
	return candidates, nil
}

func (p *Provider) appendEvent(sink *events.Sink, promptText, response string, durationMillis int64) {
	if sink == nil {
		return
	}
	sink.Append(events.NewLLMCall(events.LLMCall{
		Prompt:         promptText,
		Response:       response,
		Model:          p.backend.Model(),
		DurationMillis: durationMillis,
	}))
}

// translateMessages maps wire messages onto provider-neutral turns. The User
// author becomes the user role; every other author becomes the model role.
func translateMessages(messages []proto.Message) []api.Turn {
	turns := make([]api.Turn, len(messages))
	for i := range messages {
		role := api.RoleModel
		if messages[i].Author == proto.AuthorUser {
			role = api.RoleUser
		}
		turns[i] = api.Turn{Role: role, Content: messages[i].Content}
	}
	return turns
}

// serializePrompt renders the full call input as the event's prompt field.
func serializePrompt(messages []proto.Message, system string, schemaRaw json.RawMessage) string {
	payload := struct {
		Messages          []proto.Message `json:"messages"`
		SystemInstruction string          `json:"systemInstruction,omitempty"`
		ResponseSchema    json.RawMessage `json:"responseSchema,omitempty"`
	}{
		Messages:          messages,
		SystemInstruction: system,
		ResponseSchema:    schemaRaw,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%+v", payload)
	}
	return string(data)
}

// serializeResponse renders candidate outputs as the event's response field:
// the raw text for a single candidate, a JSON array for several.
func serializeResponse(candidates []string) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Sprintf("%v", candidates)
	}
	return string(data)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return ""
	}
	return llmerrors.TypeOf(err).String()
}
