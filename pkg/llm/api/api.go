// Package api defines the provider-neutral types shared between the LLM
// operation core and the vendor backend implementations.
package api

import (
	"context"
	"encoding/json"
)

// Role identifies the speaker of a conversation turn in provider-neutral
// terms. Vendors map these onto their native role names.
type Role string

const (
	// RoleUser is a turn authored by the end user.
	RoleUser Role = "user"
	// RoleModel is a turn authored by the model (assistant).
	RoleModel Role = "model"
)

// Turn is one provider-neutral conversation turn.
type Turn struct {
	Role    Role
	Content string
}

// Request is a single completion request as executed by a backend. One
// Request corresponds to one physical provider attempt; retries re-execute
// the same Request.
type Request struct {
	Turns       []Turn
	System      string          // System instruction; empty means none
	Schema      json.RawMessage // Response schema document; nil for plain generation
	SchemaDoc   any             // Schema decoded to plain JSON values, for vendor SDK params
	Candidates  int             // Number of independent outputs wanted; >= 1
	Temperature float64
	MaxTokens   int
	Params      map[string]any // Vendor-specific parameter bag; may be nil
}

// Backend executes completion requests against one vendor API. A Backend is
// constructed once per process and must tolerate concurrent use; it holds no
// per-request state. Errors should be classified *llmerrors.Error values so
// the retry layer can tell terminal from retryable failures.
type Backend interface {
	// Provider returns the configured provider identifier.
	Provider() string

	// Model returns the model name requests are executed against.
	Model() string

	// Complete executes one attempt and returns the raw candidate outputs.
	// The result has at most req.Candidates entries; zero entries means the
	// vendor returned no usable content.
	Complete(ctx context.Context, req Request) ([]string, error)
}
