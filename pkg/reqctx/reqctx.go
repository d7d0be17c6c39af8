// Package reqctx carries per-request state through business logic: the
// parsed conversation, the event sink, a request-scoped value store, and
// contextual facades that pre-bind persona, free-text context, and the sink
// so call sites only supply call-specific arguments.
//
// A Context is created fresh for each inbound request, owned by its
// dispatcher for the request's lifetime, and never shared across requests or
// retained afterward. The facades take the owning Context as an explicit
// parameter rather than capturing it.
package reqctx

import (
	"context"
	"sync"

	"agentd/pkg/events"
	"agentd/pkg/httpx"
	"agentd/pkg/llm"
	"agentd/pkg/proto"
	"agentd/pkg/schema"
)

// Context aggregates one inbound request's state.
type Context struct {
	Messages    []proto.Message
	Metadata    proto.Metadata
	Persona     *proto.Persona
	ContextText string

	// Events receives one record per mediated LLM or HTTP call.
	Events *events.Sink

	// LLM and HTTP are the contextual facades bound to the process-level
	// clients. Either may be nil when the corresponding client is absent.
	LLM  *LLM
	HTTP *HTTP

	mu     sync.Mutex
	values map[string]any
}

// New builds a fresh request context from a parsed request. The sink and
// value store start empty.
func New(req *proto.Request, llmClient llm.Client, httpClient *httpx.Client) *Context {
	rc := &Context{
		Messages:    req.Messages,
		Metadata:    req.Metadata,
		Persona:     req.Persona,
		ContextText: req.Context,
		Events:      events.NewSink(),
		values:      make(map[string]any),
	}
	if llmClient != nil {
		rc.LLM = &LLM{client: llmClient}
	}
	if httpClient != nil {
		rc.HTTP = &HTTP{client: httpClient}
	}
	return rc
}

// StoreValue records a key/value pair to return with the response. Keys are
// unique; the last write wins.
func (rc *Context) StoreValue(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.values[key] = value
}

// Values returns a copy of the stored values.
func (rc *Context) Values() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.values) == 0 {
		return nil
	}
	copied := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		copied[k] = v
	}
	return copied
}

// Overrides carries optional per-call knobs for the LLM facade.
type Overrides struct {
	IncludePersona *bool
	IncludeContext *bool
	Params         map[string]any
}

// LLM pre-binds the request's persona, free-text context, and event sink to
// the underlying client. Pure forwarding; no additional state or failure
// modes.
type LLM struct {
	client llm.Client
}

// NewLLM creates a contextual LLM facade. Exposed for tests; dispatchers get
// one via New.
func NewLLM(client llm.Client) *LLM {
	return &LLM{client: client}
}

func buildRequest(rc *Context, messages []proto.Message, instruction string, ov *Overrides) llm.Request {
	req := llm.Request{
		Messages:    messages,
		Instruction: instruction,
		Persona:     rc.Persona,
		Context:     rc.ContextText,
		Sink:        rc.Events,
	}
	if ov != nil {
		req.IncludePersona = ov.IncludePersona
		req.IncludeContext = ov.IncludeContext
		req.Params = ov.Params
	}
	return req
}

// Generate produces a single text completion. ov may be nil.
func (l *LLM) Generate(ctx context.Context, rc *Context, messages []proto.Message, instruction string, ov *Overrides) (string, error) {
	return l.client.Generate(ctx, buildRequest(rc, messages, instruction, ov))
}

// GenerateStructured produces a single schema-conformant value.
func (l *LLM) GenerateStructured(ctx context.Context, rc *Context, messages []proto.Message, instruction string, s *schema.Schema, ov *Overrides) (any, error) {
	return l.client.GenerateStructured(ctx, buildRequest(rc, messages, instruction, ov), s)
}

// GenerateWithCandidates produces count independent completions.
func (l *LLM) GenerateWithCandidates(ctx context.Context, rc *Context, messages []proto.Message, instruction string, count int, ov *Overrides) ([]string, error) {
	return l.client.GenerateWithCandidates(ctx, buildRequest(rc, messages, instruction, ov), count)
}

// GenerateStructuredWithCandidates produces up to count schema-conformant
// values, dropping candidates that fail validation.
func (l *LLM) GenerateStructuredWithCandidates(ctx context.Context, rc *Context, messages []proto.Message, instruction string, s *schema.Schema, count int, ov *Overrides) ([]any, error) {
	return l.client.GenerateStructuredWithCandidates(ctx, buildRequest(rc, messages, instruction, ov), s, count)
}

// HTTP pre-binds the request's event sink to the tracked outbound client.
type HTTP struct {
	client *httpx.Client
}

// NewHTTP creates a contextual HTTP facade. Exposed for tests; dispatchers
// get one via New.
func NewHTTP(client *httpx.Client) *HTTP {
	return &HTTP{client: client}
}

// Do executes a tracked call against the request's sink.
func (h *HTTP) Do(ctx context.Context, rc *Context, req httpx.Request) (*httpx.Response, error) {
	return h.client.Do(ctx, req, rc.Events)
}

// Get executes a tracked GET against the request's sink.
func (h *HTTP) Get(ctx context.Context, rc *Context, url string, headers map[string]string) (*httpx.Response, error) {
	return h.client.Get(ctx, url, headers, rc.Events)
}

// Post executes a tracked POST against the request's sink.
func (h *HTTP) Post(ctx context.Context, rc *Context, url string, headers map[string]string, body []byte) (*httpx.Response, error) {
	return h.client.Post(ctx, url, headers, body, rc.Events)
}
