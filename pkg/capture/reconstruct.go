package capture

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/coilworks/mnemo/pkg/llm"
	"github.com/coilworks/mnemo/pkg/sse"
)

// streamEvent is the subset of Messages API stream event fields the
// reconstructor consumes. Unknown event types and extra fields are ignored.
type streamEvent struct {
	Type string `json:"type"`

	// message_start carries the response envelope.
	Message *struct {
		ID    string       `json:"id"`
		Model string       `json:"model"`
		Usage *streamUsage `json:"usage"`
	} `json:"message"`

	// content_block_start declares the opening block's type.
	ContentBlock *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content_block"`

	// content_block_delta and message_delta payloads.
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`

	// message_delta carries output token usage.
	Usage *streamUsage `json:"usage"`
}

type streamUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Reconstructor assembles one complete response payload from an incremental
// Messages API event stream.
//
// A content block's accumulated text is only committed when its explicit
// content_block_stop boundary is observed; a stream that ends mid-block
// yields nothing for that block, so partial deliveries never produce
// truncated turns. Malformed event payloads are skipped without aborting
// the parse.
type Reconstructor struct {
	id         string
	model      string
	stopReason string
	usage      llm.Usage

	// open block accumulator
	blockOpen bool
	blockType string
	buf       strings.Builder

	blocks []llm.ContentBlock
}

// NewReconstructor creates a reconstructor for one response cycle.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{}
}

// Observe consumes one event data payload (the JSON after "data:").
func (r *Reconstructor) Observe(data []byte) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		// One bad line must not discard an otherwise-valid stream.
		return
	}

	switch ev.Type {
	case "message_start":
		if ev.Message == nil {
			return
		}
		r.id = ev.Message.ID
		r.model = ev.Message.Model
		if u := ev.Message.Usage; u != nil {
			r.usage.PromptTokens = u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
			r.usage.CacheCreationInputTokens = u.CacheCreationInputTokens
			r.usage.CacheReadInputTokens = u.CacheReadInputTokens
		}

	case "content_block_start":
		if ev.ContentBlock == nil {
			return
		}
		r.blockOpen = true
		r.blockType = ev.ContentBlock.Type
		r.buf.Reset()
		// Some streams seed the block with initial text.
		r.buf.WriteString(ev.ContentBlock.Text)

	case "content_block_delta":
		// Deltas for a block with no open accumulator are malformed or
		// out-of-order; ignore them.
		if !r.blockOpen || ev.Delta == nil {
			return
		}
		if ev.Delta.Type == "text_delta" {
			r.buf.WriteString(ev.Delta.Text)
		}

	case "content_block_stop":
		if !r.blockOpen {
			return
		}
		if r.blockType == "text" {
			r.blocks = append(r.blocks, llm.ContentBlock{Type: "text", Text: r.buf.String()})
		}
		r.blockOpen = false
		r.buf.Reset()

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			r.stopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			r.usage.CompletionTokens = ev.Usage.OutputTokens
		}

	default:
		// Unrecognized event types (ping, message_stop, ...) are ignored.
	}
}

// Complete reports whether the assembled payload is usable: at least one
// committed, non-empty text block.
func (r *Reconstructor) Complete() bool {
	for _, block := range r.blocks {
		if block.Type == "text" && block.Text != "" {
			return true
		}
	}
	return false
}

// Response returns the assembled payload and whether it is complete. The
// response is only meaningful when complete is true; callers must treat an
// incomplete payload as "not yet done" and take no persistence action.
func (r *Reconstructor) Response() (*llm.ChatResponse, bool) {
	if !r.Complete() {
		return nil, false
	}

	var usage *llm.Usage
	if r.usage != (llm.Usage{}) {
		u := r.usage
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		usage = &u
	}

	return &llm.ChatResponse{
		ID:         r.id,
		Model:      r.model,
		StopReason: r.stopReason,
		Usage:      usage,
		CreatedAt:  time.Now(),
		Message: llm.Message{
			Role:    "assistant",
			Content: r.blocks,
		},
	}, true
}

// ReconstructStream parses a full SSE byte stream and assembles the
// response. Returns the response and whether assembly completed; read
// errors surface as an incomplete result since partial streams are an
// expected control signal, not a failure.
func ReconstructStream(src io.Reader) (*llm.ChatResponse, bool) {
	r := NewReconstructor()
	reader := sse.NewReader(src)

	for {
		ev, err := reader.Next()
		if err != nil || ev == nil {
			break
		}
		if ev.Data == "" {
			continue
		}
		r.Observe([]byte(ev.Data))
	}

	return r.Response()
}
