// Package ollama provides the Ollama backend for locally hosted models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	ollama "github.com/ollama/ollama/api"
	"golang.org/x/sync/errgroup"

	"agentd/pkg/config"
	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
)

// Client wraps the Ollama API client as an api.Backend.
type Client struct {
	client *ollama.Client
	model  string
}

// New creates an Ollama backend. hostURL is the server URL
// (e.g. "http://localhost:11434"); empty falls back to the default.
func New(hostURL, model string) *Client {
	if hostURL == "" {
		hostURL = "http://localhost:11434"
	}
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &Client{
		client: ollama.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() string {
	return config.ProviderOllama
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete executes one attempt. The chat endpoint returns a single message,
// so candidate requests fan out concurrently. Schema-constrained requests use
// Ollama's structured outputs (format field).
func (c *Client) Complete(ctx context.Context, req api.Request) ([]string, error) {
	if req.Candidates <= 1 {
		text, err := c.completeOne(ctx, req)
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	results := make([]string, req.Candidates)
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < req.Candidates; i++ {
		group.Go(func() error {
			text, err := c.completeOne(gctx, req)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = text
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(results))
	for _, text := range results {
		if text != "" {
			candidates = append(candidates, text)
		}
	}
	return candidates, nil
}

func (c *Client) completeOne(ctx context.Context, req api.Request) (string, error) {
	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    c.model,
		Messages: convertTurns(req.Turns, req.System),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if req.Schema != nil {
		chatReq.Format = req.Schema
	}

	var response ollama.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp ollama.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	return response.Message.Content, nil
}

// convertTurns maps neutral turns onto Ollama messages. The system
// instruction travels as a leading system message.
func convertTurns(turns []api.Turn, system string) []ollama.Message {
	messages := make([]ollama.Message, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: system})
	}
	for i := range turns {
		role := "assistant"
		if turns[i].Role == api.RoleUser {
			role = "user"
		}
		messages = append(messages, ollama.Message{Role: role, Content: turns[i].Content})
	}
	return messages
}

// classify maps Ollama errors onto the runtime error taxonomy. The client
// surfaces plain errors, so classification is pattern based.
func classify(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, fmt.Sprintf("Ollama model not found: %v", err))
	default:
		return llmerrors.Classify(err)
	}
}
