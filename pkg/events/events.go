// Package events provides per-request call-event tracking. Every mediated
// LLM or outbound HTTP call appends exactly one event to the request's sink,
// regardless of how many retry attempts happened underneath; the accumulated
// sequence is returned on the wire response and then discarded.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Type discriminates the call-event union on the wire.
type Type string

const (
	// TypeLLMCall records one logical LLM provider invocation.
	TypeLLMCall Type = "llm_call"
	// TypeAPICall records one outbound HTTP call.
	TypeAPICall Type = "api_call"
)

// LLMCall is the payload of an llm_call event. Prompt carries the full
// serialized input (messages, system instruction, optional response schema);
// Response carries the raw output, or an "Error: ..." marker on failure.
type LLMCall struct {
	Prompt         string `json:"prompt"`
	Response       string `json:"response"`
	Model          string `json:"model"`
	DurationMillis int64  `json:"durationInMillis"`
}

// APICall is the payload of an api_call event.
type APICall struct {
	URL                string            `json:"url"`
	RequestMethod      string            `json:"requestMethod"`
	RequestHeaders     map[string]string `json:"requestHeaders"`
	RequestBody        string            `json:"requestBody,omitempty"`
	ResponseHeaders    map[string]string `json:"responseHeaders"`
	ResponseStatusCode int               `json:"responseStatusCode"`
	ResponseBody       string            `json:"responseBody,omitempty"`
	DurationMillis     int64             `json:"durationInMillis"`
}

// Event is one tagged call record.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// NewLLMCall wraps an LLMCall payload as a tagged event.
func NewLLMCall(payload LLMCall) Event {
	return Event{Type: TypeLLMCall, Payload: payload}
}

// NewAPICall wraps an APICall payload as a tagged event.
func NewAPICall(payload APICall) Event {
	return Event{Type: TypeAPICall, Payload: payload}
}

// UnmarshalJSON decodes the tagged union into its concrete payload type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    Type            `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	e.Type = raw.Type
	switch raw.Type {
	case TypeLLMCall:
		var payload LLMCall
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode llm_call payload: %w", err)
		}
		e.Payload = payload
	case TypeAPICall:
		var payload APICall
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode api_call payload: %w", err)
		}
		e.Payload = payload
	default:
		return fmt.Errorf("unknown event type: %q", raw.Type)
	}
	return nil
}

// Sink is an ordered, append-only sequence of call events scoped to one
// inbound request. Appends are atomic; ordering is completion order of the
// calls that produced them. A Sink must never be shared across requests.
type Sink struct {
	mu     sync.Mutex
	events []Event
}

// NewSink creates an empty event sink.
func NewSink() *Sink {
	return &Sink{}
}

// Append adds one event as a single atomic step.
func (s *Sink) Append(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Len returns the number of recorded events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Snapshot returns a copy of the recorded events in append order.
func (s *Sink) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
