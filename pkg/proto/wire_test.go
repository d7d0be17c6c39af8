package proto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validPayload() string {
	return `{
		"metadata": {"requestId": "req-1", "chatbotId": "bot-1", "conversationId": "conv-1"},
		"messages": [
			{"author": "User", "content": "hi", "timestamp": "2026-01-01T00:00:00Z"},
			{"author": "Chatbot", "content": "hello", "timestamp": "2026-01-01T00:00:01Z"}
		]
	}`
}

func TestParseRequestValid(t *testing.T) {
	req, err := ParseRequest([]byte(validPayload()))
	if err != nil {
		t.Fatalf("Expected valid request, got %v", err)
	}
	if req.Metadata.RequestID != "req-1" {
		t.Errorf("Expected requestId req-1, got %s", req.Metadata.RequestID)
	}
	if len(req.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(req.Messages))
	}
	if req.Messages[1].Author != AuthorChatbot {
		t.Errorf("Expected Chatbot author, got %s", req.Messages[1].Author)
	}
}

func TestParseRequestEmptyMessages(t *testing.T) {
	payload := `{
		"metadata": {"requestId": "r", "chatbotId": "b", "conversationId": "c"},
		"messages": []
	}`
	req, err := ParseRequest([]byte(payload))
	if err != nil {
		t.Fatalf("Expected empty messages to be valid, got %v", err)
	}
	if len(req.Messages) != 0 {
		t.Errorf("Expected 0 messages, got %d", len(req.Messages))
	}
}

func TestParseRequestUnknownFieldsIgnored(t *testing.T) {
	payload := strings.Replace(validPayload(), `"metadata"`, `"futureField": {"x": 1}, "metadata"`, 1)
	if _, err := ParseRequest([]byte(payload)); err != nil {
		t.Errorf("Expected unknown fields to be ignored, got %v", err)
	}
}

func TestParseRequestMissingMetadata(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing requestId", `{"metadata": {"chatbotId": "b", "conversationId": "c"}, "messages": []}`},
		{"missing chatbotId", `{"metadata": {"requestId": "r", "conversationId": "c"}, "messages": []}`},
		{"missing conversationId", `{"metadata": {"requestId": "r", "chatbotId": "b"}, "messages": []}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tc.payload))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestParseRequestBadAuthor(t *testing.T) {
	payload := `{
		"metadata": {"requestId": "r", "chatbotId": "b", "conversationId": "c"},
		"messages": [{"author": "System", "content": "x", "timestamp": "t"}]
	}`
	_, err := ParseRequest([]byte(payload))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for bad author, got %v", err)
	}
}

func TestParseRequestMalformedJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`{not json`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError for malformed JSON, got %v", err)
	}
}

func TestTransferCommandShape(t *testing.T) {
	cmd := GoToNextBlockCommand("support", "bye")
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"type":"go_to_next_block","payload":{"message":"bye","nextBlockReferenceKey":"support"}}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

func TestResponseOmitsEmptyCollections(t *testing.T) {
	resp := Response{Command: SendMessageCommand("hi")}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "valuesToSave") {
		t.Error("Expected valuesToSave to be absent when empty")
	}
	if strings.Contains(string(data), "events") {
		t.Error("Expected events to be absent when empty")
	}
}
