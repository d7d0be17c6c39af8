// Package google provides the Google-style backend using the GenAI Go SDK.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"agentd/pkg/config"
	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
)

// Client wraps the Google GenAI client as an api.Backend. The underlying
// client is created lazily because the SDK requires a context for
// construction; creation happens at most once.
type Client struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// New creates a Google backend.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() string {
	return config.ProviderGoogle
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) resolveClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "failed to create Gemini client")
	}
	c.client = client
	return client, nil
}

// Complete executes one generation attempt. Multi-candidate requests use the
// API's native candidateCount. Schema-constrained requests ask for JSON
// output and carry the schema in the system instruction; conformance is
// enforced by the caller's validator.
func (c *Client) Complete(ctx context.Context, req api.Request) ([]string, error) {
	client, err := c.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := convertTurns(req.Turns)

	//nolint:gosec // MaxTokens validated at config load, overflow not reachable
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.Candidates > 1 {
		//nolint:gosec // Candidate counts are small
		cfg.CandidateCount = int32(req.Candidates)
	}

	system := req.System
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		system = appendSchemaBlock(system, string(req.Schema))
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, classify(err)
	}
	if result == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeNoContent, "empty response from Gemini API")
	}

	candidates := make([]string, 0, len(result.Candidates))
	for _, cand := range result.Candidates {
		if text := candidateText(cand); text != "" {
			candidates = append(candidates, text)
		}
	}
	return candidates, nil
}

// convertTurns maps neutral turns onto Gemini contents. Gemini natively uses
// "user" and "model" roles.
func convertTurns(turns []api.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for i := range turns {
		role := "user"
		if turns[i].Role == api.RoleModel {
			role = "model" // Gemini uses "model" instead of "assistant"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turns[i].Content}},
		})
	}
	return contents
}

// candidateText concatenates the text parts of one candidate.
func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func appendSchemaBlock(system, schemaText string) string {
	block := fmt.Sprintf("<response_schema>\nRespond with a single JSON value conforming to this JSON schema:\n%s\n</response_schema>", schemaText)
	if system == "" {
		return block
	}
	return system + "\n\n" + block
}

// classify maps SDK errors onto the runtime error taxonomy.
func classify(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return llmerrors.NewErrorWithCause(
			llmerrors.ClassifyStatus(apierr.Code), err,
			fmt.Sprintf("Gemini API error (status %d)", apierr.Code))
	}
	return llmerrors.Classify(err)
}
