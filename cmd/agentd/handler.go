package main

import (
	"context"
	"fmt"

	"agentd/pkg/dispatch"
	"agentd/pkg/reqctx"
)

const assistantInstruction = `You are a customer service agent. Answer the
user's latest message using the conversation history. If the request is
outside your scope, say so briefly and suggest contacting a human agent.`

// NewAssistantHandler returns the default conversational handler: one LLM
// call over the full history, replied as a send-message command.
func NewAssistantHandler() dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, rc *reqctx.Context) (dispatch.AgentResponse, error) {
		if rc.LLM == nil {
			return dispatch.AgentResponse{}, fmt.Errorf("no LLM client available")
		}
		reply, err := rc.LLM.Generate(ctx, rc, rc.Messages, assistantInstruction, nil)
		if err != nil {
			return dispatch.AgentResponse{}, fmt.Errorf("generating reply: %w", err)
		}
		return dispatch.Continue(reply), nil
	})
}

// EchoHandler replies with the latest user message. Useful for wiring smoke
// tests without a configured provider.
func EchoHandler() dispatch.Handler {
	return dispatch.HandlerFunc(func(_ context.Context, rc *reqctx.Context) (dispatch.AgentResponse, error) {
		if len(rc.Messages) == 0 {
			return dispatch.Continue("Hello! How can I help?"), nil
		}
		last := rc.Messages[len(rc.Messages)-1]
		return dispatch.Continue(last.Content), nil
	})
}
