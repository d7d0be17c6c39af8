// Package dispatch orchestrates one inbound request end-to-end: parse and
// validate the payload, build a fresh request context, invoke the registered
// business-logic handler, and translate its result into the wire response
// with accumulated events and stored values attached.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentd/pkg/httpx"
	"agentd/pkg/llm"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/proto"
	"agentd/pkg/reqctx"
)

// Kind discriminates the business-logic outcome.
type Kind string

const (
	// KindContinue keeps the conversation in the current block.
	KindContinue Kind = "continue"
	// KindTransfer hands the conversation to another block.
	KindTransfer Kind = "transfer"
)

// AgentResponse is the business-logic result union.
type AgentResponse struct {
	Kind                  Kind
	Message               string
	NextBlockReferenceKey string
}

// Continue builds a response that sends a message within the current block.
func Continue(message string) AgentResponse {
	return AgentResponse{Kind: KindContinue, Message: message}
}

// Transfer builds a response that moves the conversation to another block,
// optionally carrying a farewell message.
func Transfer(blockReferenceKey, message string) AgentResponse {
	return AgentResponse{Kind: KindTransfer, NextBlockReferenceKey: blockReferenceKey, Message: message}
}

// Handler is the business-logic entry point. It is invoked once per request
// with a context that is never shared or retained. A returned error is an
// internal failure; the dispatcher never retries it.
type Handler interface {
	Handle(ctx context.Context, rc *reqctx.Context) (AgentResponse, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, rc *reqctx.Context) (AgentResponse, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rc *reqctx.Context) (AgentResponse, error) {
	return f(ctx, rc)
}

// ErrUnknownHandler is returned when no handler is registered for a path.
var ErrUnknownHandler = errors.New("no handler registered for path")

// Dispatcher routes inbound requests to registered handlers. Registration
// happens at startup; Dispatch is safe for concurrent use afterward.
type Dispatcher struct {
	llmClient  llm.Client
	httpClient *httpx.Client
	logger     *logx.Logger
	recorder   metrics.Recorder

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a dispatcher over the process-level clients. Either client and
// the recorder may be nil.
func New(llmClient llm.Client, httpClient *httpx.Client, recorder metrics.Recorder) *Dispatcher {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Dispatcher{
		llmClient:  llmClient,
		httpClient: httpClient,
		logger:     logx.NewLogger("dispatch"),
		recorder:   recorder,
		handlers:   make(map[string]Handler),
	}
}

// Register binds a handler to a path.
func (d *Dispatcher) Register(path string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[path] = handler
}

// Dispatch handles one inbound request. The raw body is parsed and
// validated; a *proto.ValidationError return marks a bad request, a wrapped
// ErrUnknownHandler an unroutable one, and any other error an internal
// failure. On internal failure accumulated events are discarded with the
// context.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, raw []byte) (*proto.Response, error) {
	start := time.Now()
	resp, err := d.dispatch(ctx, path, raw)
	d.recorder.ObserveDispatch(path, outcomeLabel(err), time.Since(start))
	return resp, err
}

func (d *Dispatcher) dispatch(ctx context.Context, path string, raw []byte) (*proto.Response, error) {
	d.mu.RLock()
	handler, ok := d.handlers[path]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, path)
	}

	req, err := proto.ParseRequest(raw)
	if err != nil {
		d.logger.Warn("rejected request on %s: %v", path, err)
		return nil, err
	}

	rc := reqctx.New(req, d.llmClient, d.httpClient)

	result, err := handler.Handle(ctx, rc)
	if err != nil {
		d.logger.Error("handler failed for request %s: %v", req.Metadata.RequestID, err)
		return nil, err
	}

	resp, err := translate(result)
	if err != nil {
		d.logger.Error("untranslatable handler result for request %s: %v", req.Metadata.RequestID, err)
		return nil, err
	}

	if values := rc.Values(); len(values) > 0 {
		resp.ValuesToSave = values
	}
	if rc.Events.Len() > 0 {
		resp.Events = rc.Events.Snapshot()
	}
	return resp, nil
}

// translate maps the business-logic union onto the wire command union.
func translate(result AgentResponse) (*proto.Response, error) {
	switch result.Kind {
	case KindContinue:
		return &proto.Response{Command: proto.SendMessageCommand(result.Message)}, nil
	case KindTransfer:
		return &proto.Response{Command: proto.GoToNextBlockCommand(result.NextBlockReferenceKey, result.Message)}, nil
	default:
		return nil, fmt.Errorf("unknown agent response kind: %q", result.Kind)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnknownHandler):
		return "not_found"
	default:
		var verr *proto.ValidationError
		if errors.As(err, &verr) {
			return "bad_request"
		}
		return "internal_error"
	}
}
