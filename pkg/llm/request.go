package llm

import "encoding/json"

// ChatRequest represents a chat completion request observed on the wire.
// This is the internal representation used by the capture pipeline after
// parsing the provider request format.
type ChatRequest struct {
	// Model name (e.g., "claude-sonnet-4-5")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether the client asked for a streamed response
	Stream *bool `json:"stream,omitempty"`

	// System prompt (carried separately from messages by the Messages API)
	System string `json:"system,omitempty"`

	// MaxTokens is required by the Messages API
	MaxTokens *int `json:"max_tokens,omitempty"`

	// RawRequest preserves the original request payload for cases where
	// parsing is incomplete or for debugging.
	RawRequest json.RawMessage `json:"raw_request,omitempty"`
}

// LastUserMessage returns the most recent message with role "user", or nil
// when the request carries none. Capture persists only the latest user turn;
// earlier entries are prior context the store has already seen.
func (r *ChatRequest) LastUserMessage() *Message {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return &r.Messages[i]
		}
	}
	return nil
}
