// Package anthropic provides the Anthropic Claude backend.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/errgroup"

	"agentd/pkg/config"
	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
)

// Client wraps the Anthropic SDK client as an api.Backend.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates an Anthropic backend.
func New(apiKey, model, baseURL string) *Client {
	// The SDK retries internally by default; the retry layer above owns the
	// retry budget, so attempts here must be single-shot.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() string {
	return config.ProviderAnthropic
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return string(c.model)
}

// Complete executes one attempt. The Messages API has no native
// multi-candidate parameter, so candidate requests fan out concurrently and
// results keep slot order. Schema-constrained requests carry the schema in
// the system instruction; conformance is enforced by the caller's validator.
func (c *Client) Complete(ctx context.Context, req api.Request) ([]string, error) {
	system := req.System
	if req.Schema != nil {
		system = appendSchemaBlock(system, string(req.Schema))
	}
	messages := convertTurns(req.Turns)

	if req.Candidates <= 1 {
		text, err := c.completeOne(ctx, messages, system, req)
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
			text, err := c.completeOne(gctx, messages, system, req)
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

func (c *Client) completeOne(ctx context.Context, messages []anthropic.MessageParam, system string, req api.Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(req.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if msg == nil {
		return "", llmerrors.NewError(llmerrors.ErrorTypeNoContent, "empty response from Anthropic API")
	}

	var sb strings.Builder
	for i := range msg.Content {
		block := &msg.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// convertTurns maps neutral turns onto Anthropic messages. The Messages API
// requires strict user/assistant alternation, so consecutive same-role turns
// are merged.
func convertTurns(turns []api.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var pendingRole api.Role
	var pendingParts []string

	flush := func() {
		if len(pendingParts) == 0 {
			return
		}
		content := strings.Join(pendingParts, "\n\n")
		if pendingRole == api.RoleUser {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		} else {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		}
		pendingParts = nil
	}

	for i := range turns {
		if turns[i].Role != pendingRole {
			flush()
			pendingRole = turns[i].Role
		}
		pendingParts = append(pendingParts, turns[i].Content)
	}
	flush()
	return messages
}

func appendSchemaBlock(system, schemaText string) string {
	block := fmt.Sprintf("<response_schema>\nRespond with a single JSON value conforming to this JSON schema, and nothing else:\n%s\n</response_schema>", schemaText)
	if system == "" {
		return block
	}
	return system + "\n\n" + block
}

// classify maps SDK errors onto the runtime error taxonomy.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return llmerrors.NewErrorWithCause(
			llmerrors.ClassifyStatus(apierr.StatusCode), err,
			fmt.Sprintf("Anthropic API error (status %d)", apierr.StatusCode))
	}
	return llmerrors.Classify(err)
}
