package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse represents a chat completion response, either parsed from a
// single JSON document or reconstructed from an event stream.
type ChatResponse struct {
	// ID is the upstream-assigned response identifier (e.g., "msg_...").
	ID string `json:"id,omitempty"`

	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// The assistant's response message
	Message Message `json:"message"`

	// Stop reason (e.g., "end_turn", "max_tokens", "tool_use")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage metrics
	Usage *Usage `json:"usage,omitempty"`

	// RawResponse preserves the original response payload for cases where
	// parsing is incomplete or for debugging.
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// ErrorResponse is the error body returned by the proxy itself.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Usage contains token counts reported by the upstream provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Cache token counts (prompt caching)
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}
