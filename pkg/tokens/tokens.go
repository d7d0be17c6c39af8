// Package tokens provides approximate token counting for serialized prompts.
// Counts are used for oversize-prompt warnings and metrics only; they never
// gate a call.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with a fixed codec. All supported providers are
// approximated with the GPT-4 encoding; vendor tokenizers differ but the
// approximation is close enough for soft limits.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to a
// character-based estimate (4 chars per token) if the codec fails.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// ExceedsLimit reports whether text exceeds the given token limit. A zero or
// negative limit disables the check.
func (c *Counter) ExceedsLimit(text string, limit int) bool {
	if limit <= 0 {
		return false
	}
	return c.Count(text) > limit
}
