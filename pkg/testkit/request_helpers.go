package testkit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"agentd/pkg/proto"
)

// RequestBuilder assembles synthetic inbound requests for tests. Metadata
// identifiers default to fresh UUIDs.
type RequestBuilder struct {
	req proto.Request
}

// NewRequest creates a builder with generated metadata.
func NewRequest() *RequestBuilder {
	return &RequestBuilder{
		req: proto.Request{
			Metadata: proto.Metadata{
				RequestID:      uuid.NewString(),
				ChatbotID:      uuid.NewString(),
				ConversationID: uuid.NewString(),
			},
		},
	}
}

// WithMetadata overrides the generated identifiers.
func (b *RequestBuilder) WithMetadata(requestID, chatbotID, conversationID string) *RequestBuilder {
	b.req.Metadata.RequestID = requestID
	b.req.Metadata.ChatbotID = chatbotID
	b.req.Metadata.ConversationID = conversationID
	return b
}

// WithUserMessage appends a user turn.
func (b *RequestBuilder) WithUserMessage(content string) *RequestBuilder {
	b.req.Messages = append(b.req.Messages, proto.Message{
		Author:    proto.AuthorUser,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// WithChatbotMessage appends a chatbot turn.
func (b *RequestBuilder) WithChatbotMessage(content string) *RequestBuilder {
	b.req.Messages = append(b.req.Messages, proto.Message{
		Author:    proto.AuthorChatbot,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// WithPersona sets the persona.
func (b *RequestBuilder) WithPersona(name, businessContext, toneOfVoice string) *RequestBuilder {
	b.req.Persona = &proto.Persona{
		Name:            name,
		BusinessContext: businessContext,
		ToneOfVoice:     toneOfVoice,
	}
	return b
}

// WithContext sets the free-text context.
func (b *RequestBuilder) WithContext(contextText string) *RequestBuilder {
	b.req.Context = contextText
	return b
}

// Build returns the assembled request.
func (b *RequestBuilder) Build() *proto.Request {
	req := b.req
	return &req
}

// JSON returns the assembled request as a wire body.
func (b *RequestBuilder) JSON() []byte {
	data, err := json.Marshal(b.req)
	if err != nil {
		panic(err)
	}
	return data
}
