// Package anthropic parses Anthropic Messages API payloads into the internal
// llm representation used by the capture pipeline.
package anthropic

import (
	"encoding/json"
	"time"

	"github.com/coilworks/mnemo/pkg/llm"
)

// ParseRequest parses a Messages API request body. Message content may be a
// plain string or a list of typed blocks; both are normalized into the llm
// ContentBlock list.
func ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req messagesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted := llm.Message{Role: msg.Role}

		switch content := msg.Content.(type) {
		case string:
			converted.Content = []llm.ContentBlock{{Type: "text", Text: content}}
		case []any:
			// Parse as array of content blocks
			for _, item := range content {
				block, ok := item.(map[string]any)
				if !ok {
					continue
				}
				converted.Content = append(converted.Content, convertBlock(block))
			}
		}

		messages = append(messages, converted)
	}

	var system string
	if s, ok := req.System.(string); ok {
		system = s
	}

	result := &llm.ChatRequest{
		Model:      req.Model,
		Messages:   messages,
		System:     system,
		Stream:     req.Stream,
		RawRequest: payload,
	}
	if req.MaxTokens > 0 {
		result.MaxTokens = &req.MaxTokens
	}

	return result, nil
}

// convertBlock maps a raw Messages API content block into an llm.ContentBlock.
func convertBlock(block map[string]any) llm.ContentBlock {
	cb := llm.ContentBlock{}
	if t, ok := block["type"].(string); ok {
		cb.Type = t
	}
	if text, ok := block["text"].(string); ok {
		cb.Text = text
	}
	if src, ok := block["source"].(map[string]any); ok {
		if mt, ok := src["media_type"].(string); ok {
			cb.MediaType = mt
		}
		if data, ok := src["data"].(string); ok {
			cb.ImageBase64 = data
		}
	}

	// Tool use
	if id, ok := block["id"].(string); ok {
		cb.ToolUseID = id
	}
	if name, ok := block["name"].(string); ok {
		cb.ToolName = name
	}
	if input, ok := block["input"].(map[string]any); ok {
		cb.ToolInput = input
	}

	// Tool result: content is a string or a nested list of text blocks
	if id, ok := block["tool_use_id"].(string); ok {
		cb.ToolResultID = id
	}
	if isErr, ok := block["is_error"].(bool); ok {
		cb.IsError = isErr
	}
	if cb.Type == "tool_result" {
		switch out := block["content"].(type) {
		case string:
			cb.ToolOutput = out
		case []any:
			for _, item := range out {
				if nested, ok := item.(map[string]any); ok {
					if text, ok := nested["text"].(string); ok {
						cb.ToolOutput += text
					}
				}
			}
		}
	}

	return cb
}

// ParseResponse parses a single-document (non-streaming) Messages API
// response body.
func ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp messagesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	content := make([]llm.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		cb := llm.ContentBlock{Type: block.Type}
		switch block.Type {
		case "text":
			cb.Text = block.Text
		case "tool_use":
			cb.ToolUseID = block.ID
			cb.ToolName = block.Name
			cb.ToolInput = block.Input
		}
		content = append(content, cb)
	}

	var u *llm.Usage
	if resp.Usage != nil {
		u = &llm.Usage{
			PromptTokens:             resp.Usage.InputTokens,
			CompletionTokens:         resp.Usage.OutputTokens,
			TotalTokens:              resp.Usage.InputTokens + resp.Usage.OutputTokens,
			CacheCreationInputTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
		}
	}

	role := resp.Role
	if role == "" {
		role = "assistant"
	}

	result := &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Message: llm.Message{
			Role:    role,
			Content: content,
		},
		StopReason:  resp.StopReason,
		Usage:       u,
		CreatedAt:   time.Now(),
		RawResponse: payload,
	}

	return result, nil
}
