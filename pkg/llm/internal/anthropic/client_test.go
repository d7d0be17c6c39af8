package anthropic

import (
	"context"
	"net/http"
	"testing"

	"agentd/pkg/llm/api"
	"agentd/pkg/llmerrors"
	"agentd/pkg/testkit"
)

func TestCompleteSingle(t *testing.T) {
	server := testkit.MockAnthropicServer("mock reply")
	defer server.Close()

	client := New("test-key", "claude-sonnet-4-20250514", server.URL)
	candidates, err := client.Complete(context.Background(), api.Request{
		Turns:       []api.Turn{{Role: api.RoleUser, Content: "hi"}},
		System:      "be brief",
		Temperature: 0.5,
		MaxTokens:   100,
		Candidates:  1,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0] != "mock reply" {
		t.Errorf("candidates = %v", candidates)
	}
}

func TestCompleteFansOutCandidates(t *testing.T) {
	server := testkit.MockAnthropicServer("variant")
	defer server.Close()

	client := New("test-key", "claude-sonnet-4-20250514", server.URL)
	candidates, err := client.Complete(context.Background(), api.Request{
		Turns:      []api.Turn{{Role: api.RoleUser, Content: "hi"}},
		MaxTokens:  100,
		Candidates: 3,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(candidates))
	}
}

func TestClassifiesServerError(t *testing.T) {
	server := testkit.MockErrorServer(http.StatusInternalServerError, "upstream down")
	defer server.Close()

	client := New("test-key", "claude-sonnet-4-20250514", server.URL)
	_, err := client.Complete(context.Background(), api.Request{
		Turns:      []api.Turn{{Role: api.RoleUser, Content: "hi"}},
		MaxTokens:  100,
		Candidates: 1,
	})
	if !llmerrors.Is(err, llmerrors.ErrorTypeTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !llmerrors.IsRetryable(err) {
		t.Error("server errors must be retryable")
	}
}

func TestMergesConsecutiveSameRoleTurns(t *testing.T) {
	turns := []api.Turn{
		{Role: api.RoleUser, Content: "first"},
		{Role: api.RoleUser, Content: "second"},
		{Role: api.RoleModel, Content: "reply"},
		{Role: api.RoleUser, Content: "third"},
	}
	messages := convertTurns(turns)
	if len(messages) != 3 {
		t.Fatalf("expected 3 merged messages, got %d", len(messages))
	}
}
