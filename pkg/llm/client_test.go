package llm

import (
	"context"
	"strings"
	"sync"
	"testing"

	"agentd/pkg/config"
	"agentd/pkg/events"
	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
	"agentd/pkg/proto"
	"agentd/pkg/schema"
)

// fakeBackend scripts Complete results per attempt. The last entry repeats
// once the script is exhausted.
type fakeBackend struct {
	mu       sync.Mutex
	results  [][]string
	errs     []error
	calls    int
	lastReq  api.Request
	provider string
	model    string
}

func (f *fakeBackend) Provider() string {
	if f.provider != "" {
		return f.provider
	}
	return "fake"
}

func (f *fakeBackend) Model() string {
	if f.model != "" {
		return f.model
	}
	return "fake-model"
}

func (f *fakeBackend) Complete(_ context.Context, req api.Request) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.lastReq = req
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	if err := f.errs[i]; err != nil {
		return nil, err
	}
	return f.results[i], nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.LLMConfig {
	return &config.LLMConfig{
		Provider:    config.ProviderOpenAI,
		Model:       "fake-model",
		MaxTokens:   256,
		Temperature: 0.2,
		TimeoutSec:  5,
		Retry:       config.RetryConfig{MaxRetries: 3, BaseDelayMS: 1, MaxJitterMS: 1},
	}
}

func newTestProvider(backend api.Backend) *Provider {
	return NewProvider(backend, testConfig(), nil)
}

func userMessages(contents ...string) []proto.Message {
	messages := make([]proto.Message, len(contents))
	for i, c := range contents {
		messages[i] = proto.Message{Author: proto.AuthorUser, Content: c}
	}
	return messages
}

func TestGenerateSuccess(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{"hello there"}}, errs: []error{nil}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	text, err := provider.Generate(context.Background(), Request{
		Messages:    userMessages("hi"),
		Instruction: "be brief",
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected %q, got %q", "hello there", text)
	}

	if sink.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", sink.Len())
	}
	call, ok := sink.Snapshot()[0].Payload.(events.LLMCall)
	if !ok {
		t.Fatalf("expected LLMCall payload, got %T", sink.Snapshot()[0].Payload)
	}
	if call.Response != "hello there" {
		t.Errorf("event response = %q", call.Response)
	}
	if call.Model != "fake-model" {
		t.Errorf("event model = %q", call.Model)
	}
	if !strings.Contains(call.Prompt, `"systemInstruction"`) {
		t.Errorf("event prompt missing system instruction: %s", call.Prompt)
	}
	if !strings.Contains(call.Prompt, "be brief") {
		t.Errorf("event prompt missing instruction text: %s", call.Prompt)
	}
	if call.DurationMillis < 0 {
		t.Errorf("negative duration: %d", call.DurationMillis)
	}
}

func TestGenerateOneEventAcrossRetries(t *testing.T) {
	transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "server error")
	backend := &fakeBackend{
		results: [][]string{nil, nil, {"recovered"}},
		errs:    []error{transient, transient, nil},
	}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	text, err := provider.Generate(context.Background(), Request{Messages: userMessages("hi"), Sink: sink})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", text)
	}
	if backend.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", backend.callCount())
	}
	if sink.Len() != 1 {
		t.Errorf("expected exactly 1 event across retries, got %d", sink.Len())
	}
}

func TestGenerateRetriesExhausted(t *testing.T) {
	transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "server error")
	backend := &fakeBackend{errs: []error{transient}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	_, err := provider.Generate(context.Background(), Request{Messages: userMessages("hi"), Sink: sink})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if backend.callCount() != 4 {
		t.Errorf("expected 4 attempts (3 retries), got %d", backend.callCount())
	}

	if sink.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", sink.Len())
	}
	call := sink.Snapshot()[0].Payload.(events.LLMCall)
	if !strings.HasPrefix(call.Response, "Error: ") {
		t.Errorf("failure event response should carry error marker, got %q", call.Response)
	}
}

func TestGenerateTerminalErrorSingleAttempt(t *testing.T) {
	terminal := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key")
	backend := &fakeBackend{errs: []error{terminal}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	_, err := provider.Generate(context.Background(), Request{Messages: userMessages("hi"), Sink: sink})
	if !llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if backend.callCount() != 1 {
		t.Errorf("terminal error should not retry, got %d attempts", backend.callCount())
	}
	if sink.Len() != 1 {
		t.Errorf("expected 1 event, got %d", sink.Len())
	}
}

func TestGenerateTranslatesAuthors(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{"ok"}}, errs: []error{nil}}
	provider := newTestProvider(backend)

	messages := []proto.Message{
		{Author: proto.AuthorUser, Content: "question"},
		{Author: proto.AuthorChatbot, Content: "answer"},
		{Author: proto.AuthorUser, Content: "followup"},
	}
	if _, err := provider.Generate(context.Background(), Request{Messages: messages}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	turns := backend.lastReq.Turns
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	wantRoles := []api.Role{api.RoleUser, api.RoleModel, api.RoleUser}
	for i, want := range wantRoles {
		if turns[i].Role != want {
			t.Errorf("turn %d role = %q, want %q", i, turns[i].Role, want)
		}
	}
}

func TestGeneratePersonaOverride(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{"ok"}, {"ok"}}, errs: []error{nil, nil}}
	provider := newTestProvider(backend)
	persona := &proto.Persona{Name: "Ada"}

	if _, err := provider.Generate(context.Background(), Request{
		Messages: userMessages("hi"),
		Persona:  persona,
	}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(backend.lastReq.System, "Ada") {
		t.Errorf("persona should be included by default, system = %q", backend.lastReq.System)
	}

	exclude := false
	if _, err := provider.Generate(context.Background(), Request{
		Messages:       userMessages("hi"),
		Persona:        persona,
		IncludePersona: &exclude,
	}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if strings.Contains(backend.lastReq.System, "Ada") {
		t.Errorf("persona override should exclude it, system = %q", backend.lastReq.System)
	}
}

func TestGenerateNoContent(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{}}, errs: []error{nil}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	_, err := provider.Generate(context.Background(), Request{Messages: userMessages("hi"), Sink: sink})
	if !llmerrors.Is(err, llmerrors.ErrorTypeNoContent) {
		t.Fatalf("expected no-content error, got %v", err)
	}
	if sink.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", sink.Len())
	}
	call := sink.Snapshot()[0].Payload.(events.LLMCall)
	if !strings.HasPrefix(call.Response, "Error: ") {
		t.Errorf("no-content event should carry error marker, got %q", call.Response)
	}
}

const answerSchema = `{
	"type": "object",
	"properties": {
		"answer": {"type": "string"}
	},
	"required": ["answer"]
}`

func TestGenerateStructuredSuccess(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{`{"answer": "42"}`}}, errs: []error{nil}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	value, err := provider.GenerateStructured(context.Background(),
		Request{Messages: userMessages("hi"), Sink: sink}, schema.MustCompile(answerSchema))
	if err != nil {
		t.Fatalf("GenerateStructured failed: %v", err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", value)
	}
	if obj["answer"] != "42" {
		t.Errorf("answer = %v", obj["answer"])
	}

	if backend.lastReq.Schema == nil {
		t.Error("schema should be forwarded to the backend")
	}
	call := sink.Snapshot()[0].Payload.(events.LLMCall)
	if !strings.Contains(call.Prompt, `"responseSchema"`) {
		t.Errorf("event prompt missing response schema: %s", call.Prompt)
	}
}

func TestGenerateStructuredValidationFailure(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{`{"unexpected": true}`}}, errs: []error{nil}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	_, err := provider.GenerateStructured(context.Background(),
		Request{Messages: userMessages("hi"), Sink: sink}, schema.MustCompile(answerSchema))
	if !llmerrors.Is(err, llmerrors.ErrorTypeSchemaValidation) {
		t.Fatalf("expected schema validation error, got %v", err)
	}

	// The provider call itself succeeded, so the event carries the raw
	// response rather than an error marker.
	if sink.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", sink.Len())
	}
	call := sink.Snapshot()[0].Payload.(events.LLMCall)
	if strings.HasPrefix(call.Response, "Error: ") {
		t.Errorf("validation failure should keep the raw response, got %q", call.Response)
	}
}

func TestGenerateWithCandidates(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{"a", "b", "c"}}, errs: []error{nil}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	candidates, err := provider.GenerateWithCandidates(context.Background(),
		Request{Messages: userMessages("hi"), Sink: sink}, 3)
	if err != nil {
		t.Fatalf("GenerateWithCandidates failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if backend.lastReq.Candidates != 3 {
		t.Errorf("backend candidates = %d", backend.lastReq.Candidates)
	}

	call := sink.Snapshot()[0].Payload.(events.LLMCall)
	if call.Response != `["a","b","c"]` {
		t.Errorf("multi-candidate event response = %q", call.Response)
	}
}

func TestGenerateWithCandidatesUnderDelivery(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{"a", "b"}}, errs: []error{nil}}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	candidates, err := provider.GenerateWithCandidates(context.Background(),
		Request{Messages: userMessages("hi"), Sink: sink}, 3)
	if err != nil {
		t.Fatalf("GenerateWithCandidates failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected the 2 delivered candidates, got %d", len(candidates))
	}
	if backend.callCount() != 1 {
		t.Errorf("under-delivery should not trigger retries, got %d attempts", backend.callCount())
	}

	call := sink.Snapshot()[0].Payload.(events.LLMCall)
	if call.Response != `["a","b"]` {
		t.Errorf("event response = %q", call.Response)
	}
}

func TestGenerateStructuredWithCandidatesDropsInvalid(t *testing.T) {
	backend := &fakeBackend{
		results: [][]string{{`{"answer": "a"}`, `not json`, `{"answer": "c"}`}},
		errs:    []error{nil},
	}
	provider := newTestProvider(backend)

	values, err := provider.GenerateStructuredWithCandidates(context.Background(),
		Request{Messages: userMessages("hi")}, schema.MustCompile(answerSchema), 3)
	if err != nil {
		t.Fatalf("GenerateStructuredWithCandidates failed: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 surviving candidates, got %d", len(values))
	}
}

func TestGenerateStructuredWithCandidatesAllInvalid(t *testing.T) {
	backend := &fakeBackend{
		results: [][]string{{`not json`, `{"wrong": 1}`}},
		errs:    []error{nil},
	}
	provider := newTestProvider(backend)
	sink := events.NewSink()

	_, err := provider.GenerateStructuredWithCandidates(context.Background(),
		Request{Messages: userMessages("hi"), Sink: sink}, schema.MustCompile(answerSchema), 2)
	if !llmerrors.Is(err, llmerrors.ErrorTypeNoValidCandidates) {
		t.Fatalf("expected no-valid-candidates error, got %v", err)
	}
	if llmerrors.Is(err, llmerrors.ErrorTypeNoContent) {
		t.Error("validation exhaustion must be distinguishable from no content")
	}
}

func TestGenerateStructuredWithCandidatesNoneReturned(t *testing.T) {
	backend := &fakeBackend{results: [][]string{{}}, errs: []error{nil}}
	provider := newTestProvider(backend)

	_, err := provider.GenerateStructuredWithCandidates(context.Background(),
		Request{Messages: userMessages("hi")}, schema.MustCompile(answerSchema), 2)
	if !llmerrors.Is(err, llmerrors.ErrorTypeNoContent) {
		t.Fatalf("expected no-content error, got %v", err)
	}
}
