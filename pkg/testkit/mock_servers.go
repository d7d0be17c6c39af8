// Package testkit provides testing utilities: mock vendor API servers,
// request builders, and assertion helpers.
package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// OpenAIHandler emulates the OpenAI chat completions API, returning text for
// every requested choice.
func OpenAIHandler(text string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request struct {
			Model string `json:"model"`
			N     int    `json:"n,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		n := request.N
		if n < 1 {
			n = 1
		}

		choices := make([]map[string]any, n)
		for i := 0; i < n; i++ {
			choices[i] = map[string]any{
				"index": i,
				"message": map[string]any{
					"role":    "assistant",
					"content": text,
				},
				"finish_reason": "stop",
			}
		}
		response := map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion",
			"model":   request.Model,
			"choices": choices,
			"usage": map[string]any{
				"prompt_tokens":     100,
				"completion_tokens": 200,
				"total_tokens":      300,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})
}

// MockOpenAIServer starts an httptest server around OpenAIHandler.
func MockOpenAIServer(text string) *httptest.Server {
	return httptest.NewServer(OpenAIHandler(text))
}

// AnthropicHandler emulates the Anthropic messages API.
func AnthropicHandler(text string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		response := map[string]any{
			"id":    "msg_mock",
			"type":  "message",
			"role":  "assistant",
			"model": request.Model,
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage": map[string]any{
				"input_tokens":  100,
				"output_tokens": 200,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})
}

// MockAnthropicServer starts an httptest server around AnthropicHandler.
func MockAnthropicServer(text string) *httptest.Server {
	return httptest.NewServer(AnthropicHandler(text))
}

// MockErrorServer creates an httptest server that always responds with the
// given status in a vendor-style error envelope.
func MockErrorServer(status int, message string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "mock_error",
				"message": message,
			},
		})
	}))
}

// FlakyServer fails the first failures requests with failStatus, then
// forwards to next. Used to exercise retry behavior end to end.
func FlakyServer(failures int, failStatus int, next http.Handler) *httptest.Server {
	var served atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(served.Add(1)) <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failStatus)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"type": "mock_error", "message": "temporary failure"},
			})
			return
		}
		next.ServeHTTP(w, r)
	}))
}
