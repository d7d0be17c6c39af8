// Package openai provides the OpenAI-style backend using the official
// OpenAI Go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"agentd/pkg/config"
	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
)

// Client wraps the official OpenAI SDK client as an api.Backend.
type Client struct {
	client openai.Client
	model  string
}

// New creates an OpenAI backend. baseURL overrides the API endpoint when
// non-empty (used against mock servers in tests).
func New(apiKey, model, baseURL string) *Client {
	// The SDK retries internally by default; the retry layer above owns the
	// retry budget, so attempts here must be single-shot.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() string {
	return config.ProviderOpenAI
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete executes one chat-completion attempt. Multi-candidate requests
// use the API's native n parameter.
func (c *Client) Complete(ctx context.Context, req api.Request) ([]string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    convertTurns(req.Turns, req.System),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	}
	if req.Candidates > 1 {
		params.N = openai.Int(int64(req.Candidates))
	}

	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: req.SchemaDoc,
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if resp == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeNoContent, "empty response from OpenAI API")
	}

	candidates := make([]string, 0, len(resp.Choices))
	for i := range resp.Choices {
		if content := resp.Choices[i].Message.Content; content != "" {
			candidates = append(candidates, content)
		}
	}
	return candidates, nil
}

// convertTurns maps neutral turns onto OpenAI chat messages, with the system
// instruction as a leading system message.
func convertTurns(turns []api.Turn, system string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for i := range turns {
		switch turns[i].Role {
		case api.RoleUser:
			messages = append(messages, openai.UserMessage(turns[i].Content))
		default:
			messages = append(messages, openai.AssistantMessage(turns[i].Content))
		}
	}
	return messages
}

// classify maps SDK errors onto the runtime error taxonomy using the HTTP
// status when available.
func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return llmerrors.NewErrorWithCause(
			llmerrors.ClassifyStatus(apierr.StatusCode), err,
			fmt.Sprintf("OpenAI API error (status %d)", apierr.StatusCode))
	}
	return llmerrors.Classify(err)
}
