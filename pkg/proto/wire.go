// Package proto defines the wire contract between the external orchestrator
// and the agent runtime: inbound conversational requests and outbound
// command responses. Parsing is forward-compatible; unknown fields are
// ignored.
package proto

import (
	"encoding/json"
	"fmt"

	"agentd/pkg/events"
)

// Author identifies who produced a conversation message.
type Author string

const (
	// AuthorUser marks a message written by the end user.
	AuthorUser Author = "User"
	// AuthorChatbot marks a message produced by the agent.
	AuthorChatbot Author = "Chatbot"
)

// Message is one conversational turn. Messages are owned by the caller and
// referenced read-only by the runtime; ordering is conversation order.
type Message struct {
	Author    Author `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // ISO-8601, as received
}

// Metadata carries request correlation identifiers.
type Metadata struct {
	RequestID      string `json:"requestId"`
	ChatbotID      string `json:"chatbotId"`
	ConversationID string `json:"conversationId"`
	InteractionID  string `json:"interactionId,omitempty"`
}

// Persona is the caller-supplied descriptive profile optionally injected
// into LLM system instructions. All fields are free text.
type Persona struct {
	Name            string `json:"name,omitempty"`
	BusinessContext string `json:"businessContext,omitempty"`
	ToneOfVoice     string `json:"toneOfVoice,omitempty"`
}

// Request is the validated inbound payload.
type Request struct {
	Metadata Metadata  `json:"metadata"`
	Messages []Message `json:"messages"`
	Context  string    `json:"context,omitempty"`
	Persona  *Persona  `json:"persona,omitempty"`
}

// ValidationError reports a malformed inbound payload. It maps to a
// 400-equivalent outcome and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// ParseRequest decodes and validates an inbound payload.
// An empty messages array is valid: business logic may branch on "no
// history yet".
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if req.Metadata.RequestID == "" {
		return nil, &ValidationError{Reason: "metadata.requestId is required"}
	}
	if req.Metadata.ChatbotID == "" {
		return nil, &ValidationError{Reason: "metadata.chatbotId is required"}
	}
	if req.Metadata.ConversationID == "" {
		return nil, &ValidationError{Reason: "metadata.conversationId is required"}
	}

	for i := range req.Messages {
		msg := &req.Messages[i]
		if msg.Author != AuthorUser && msg.Author != AuthorChatbot {
			return nil, &ValidationError{Reason: fmt.Sprintf("messages[%d].author must be %q or %q", i, AuthorUser, AuthorChatbot)}
		}
	}

	return &req, nil
}

// CommandType discriminates the outbound command union.
type CommandType string

const (
	// CommandSendMessage tells the orchestrator to send a message to the user.
	CommandSendMessage CommandType = "send_message"
	// CommandGoToNextBlock tells the orchestrator to transfer to another flow block.
	CommandGoToNextBlock CommandType = "go_to_next_block"
)

// CommandPayload carries the command arguments. NextBlockReferenceKey is
// only present for go_to_next_block.
type CommandPayload struct {
	Message               string `json:"message,omitempty"`
	NextBlockReferenceKey string `json:"nextBlockReferenceKey,omitempty"`
}

// Command is the discriminated outbound instruction.
type Command struct {
	Type    CommandType    `json:"type"`
	Payload CommandPayload `json:"payload"`
}

// SendMessageCommand builds a send_message command.
func SendMessageCommand(message string) Command {
	return Command{
		Type:    CommandSendMessage,
		Payload: CommandPayload{Message: message},
	}
}

// GoToNextBlockCommand builds a go_to_next_block command.
func GoToNextBlockCommand(nextBlockReferenceKey, message string) Command {
	return Command{
		Type: CommandGoToNextBlock,
		Payload: CommandPayload{
			NextBlockReferenceKey: nextBlockReferenceKey,
			Message:               message,
		},
	}
}

// Response is the outbound wire payload. ValuesToSave and Events are
// omitted entirely when empty.
type Response struct {
	Command      Command        `json:"command"`
	ValuesToSave map[string]any `json:"valuesToSave,omitempty"`
	Events       []events.Event `json:"events,omitempty"`
}
