package testkit

import (
	"strings"
	"testing"

	"agentd/pkg/events"
	"agentd/pkg/proto"
)

// AssertEventCount verifies the sink holds exactly want events.
func AssertEventCount(t *testing.T, sink *events.Sink, want int) {
	t.Helper()
	if sink.Len() != want {
		t.Errorf("expected %d events, got %d", want, sink.Len())
	}
}

// AssertLLMEvent verifies the event at index is an LLM call and returns its
// payload.
func AssertLLMEvent(t *testing.T, sink *events.Sink, index int) events.LLMCall {
	t.Helper()
	snapshot := sink.Snapshot()
	if index >= len(snapshot) {
		t.Fatalf("no event at index %d, sink has %d", index, len(snapshot))
	}
	if snapshot[index].Type != events.TypeLLMCall {
		t.Fatalf("event %d type = %q, want %q", index, snapshot[index].Type, events.TypeLLMCall)
	}
	call, ok := snapshot[index].Payload.(events.LLMCall)
	if !ok {
		t.Fatalf("event %d payload is %T", index, snapshot[index].Payload)
	}
	return call
}

// AssertAPIEvent verifies the event at index is an API call and returns its
// payload.
func AssertAPIEvent(t *testing.T, sink *events.Sink, index int) events.APICall {
	t.Helper()
	snapshot := sink.Snapshot()
	if index >= len(snapshot) {
		t.Fatalf("no event at index %d, sink has %d", index, len(snapshot))
	}
	if snapshot[index].Type != events.TypeAPICall {
		t.Fatalf("event %d type = %q, want %q", index, snapshot[index].Type, events.TypeAPICall)
	}
	call, ok := snapshot[index].Payload.(events.APICall)
	if !ok {
		t.Fatalf("event %d payload is %T", index, snapshot[index].Payload)
	}
	return call
}

// AssertErrorMarked verifies an LLM event response carries the failure
// marker.
func AssertErrorMarked(t *testing.T, call events.LLMCall) {
	t.Helper()
	if !strings.HasPrefix(call.Response, "Error: ") {
		t.Errorf("expected error-marked response, got %q", call.Response)
	}
}

// AssertCommandType verifies the outbound command discriminator.
func AssertCommandType(t *testing.T, resp *proto.Response, want proto.CommandType) {
	t.Helper()
	if resp == nil {
		t.Fatal("nil response")
	}
	if resp.Command.Type != want {
		t.Errorf("command type = %q, want %q", resp.Command.Type, want)
	}
}
