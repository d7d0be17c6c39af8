package events

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestSinkAppendOrder(t *testing.T) {
	sink := NewSink()
	sink.Append(NewLLMCall(LLMCall{Model: "m1", Prompt: "p1", Response: "r1"}))
	sink.Append(NewAPICall(APICall{URL: "https://example.com", RequestMethod: "GET", ResponseStatusCode: 200}))

	if sink.Len() != 2 {
		t.Fatalf("Expected 2 events, got %d", sink.Len())
	}

	snapshot := sink.Snapshot()
	if snapshot[0].Type != TypeLLMCall {
		t.Errorf("Expected first event llm_call, got %s", snapshot[0].Type)
	}
	if snapshot[1].Type != TypeAPICall {
		t.Errorf("Expected second event api_call, got %s", snapshot[1].Type)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	sink := NewSink()
	sink.Append(NewLLMCall(LLMCall{Model: "m"}))

	snapshot := sink.Snapshot()
	sink.Append(NewLLMCall(LLMCall{Model: "m2"}))

	if len(snapshot) != 1 {
		t.Errorf("Expected snapshot unaffected by later appends, got %d events", len(snapshot))
	}
}

func TestConcurrentAppendsAreAtomic(t *testing.T) {
	sink := NewSink()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				sink.Append(NewLLMCall(LLMCall{Model: "m", Response: "r"}))
			}
		}()
	}
	wg.Wait()

	if sink.Len() != writers*perWriter {
		t.Errorf("Expected %d events, got %d", writers*perWriter, sink.Len())
	}
}

func TestEventRoundTrip(t *testing.T) {
	original := []Event{
		NewLLMCall(LLMCall{Prompt: "p", Response: "r", Model: "gpt", DurationMillis: 120}),
		NewAPICall(APICall{
			URL:                "https://api.example.com/v1",
			RequestMethod:      "POST",
			RequestHeaders:     map[string]string{"Content-Type": "application/json"},
			RequestBody:        `{"a":1}`,
			ResponseHeaders:    map[string]string{"X-Request-Id": "abc"},
			ResponseStatusCode: 201,
			ResponseBody:       `{"ok":true}`,
			DurationMillis:     45,
		}),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded []Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	again, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("Re-marshal failed: %v", err)
	}
	if string(data) != string(again) {
		t.Errorf("Round-trip not idempotent:\n%s\n%s", data, again)
	}

	if decoded[0].Payload.(LLMCall).Model != "gpt" {
		t.Error("Expected llm_call payload to decode to concrete type")
	}
	if decoded[1].Payload.(APICall).ResponseStatusCode != 201 {
		t.Error("Expected api_call payload to decode to concrete type")
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	var evt Event
	if err := json.Unmarshal([]byte(`{"type":"fax_call","payload":{}}`), &evt); err == nil {
		t.Error("Expected error for unknown event type")
	}
}
