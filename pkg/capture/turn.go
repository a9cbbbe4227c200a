package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/coilworks/mnemo/pkg/llm"
	"github.com/coilworks/mnemo/pkg/memory"
)

// SourceTag marks memories captured by the proxy, distinguishing them from
// reflection insights and manual additions.
const SourceTag = "mnemo_proxy"

// Turn is one reconstructed conversation exchange ready for persistence.
type Turn struct {
	// Messages is the ordered user/assistant pair with normalized text.
	Messages []memory.Message

	// Model is the responding model identifier.
	Model string

	// ResponseID is the upstream-assigned response ID, when present.
	ResponseID string

	// RunID is the stable session identifier derived from turn content.
	RunID string

	// DedupKey guarantees at-most-once persistence per logical exchange.
	DedupKey string

	// CapturedAt is when the turn was assembled.
	CapturedAt time.Time
}

// Metadata returns the metadata attached to the persisted memory.
func (t *Turn) Metadata() map[string]any {
	return map[string]any{
		"source":     SourceTag,
		"model":      t.Model,
		"timestamp":  t.CapturedAt.UTC().Format(time.RFC3339),
		"session_id": t.RunID,
	}
}

// TurnBuilder derives conversation turns from correlated request/response
// pairs, applying exclusion rules before any extraction work.
type TurnBuilder struct {
	// excludedModels are model-identifier substrings whose responses are
	// skipped (e.g. lightweight background models).
	excludedModels []string
}

// NewTurnBuilder creates a builder with the given model exclusion rules.
func NewTurnBuilder(excludedModels []string) *TurnBuilder {
	return &TurnBuilder{excludedModels: excludedModels}
}

// Build produces a Turn from a correlated pair, or nil with a skip reason.
func (b *TurnBuilder) Build(req *llm.ChatRequest, resp *llm.ChatResponse) (*Turn, string) {
	model := resp.Model
	if model == "" {
		model = req.Model
	}

	// Exclusions run before any extraction work.
	for _, excluded := range b.excludedModels {
		if excluded != "" && strings.Contains(model, excluded) {
			return nil, ReasonExcludedModel
		}
	}

	userMsg := req.LastUserMessage()
	if userMsg == nil {
		return nil, ReasonEmptyTurn
	}

	userText := userMsg.NormalizeText()
	assistantText := resp.Message.NormalizeText()
	if userText == "" || assistantText == "" {
		return nil, ReasonEmptyTurn
	}

	messages := []memory.Message{
		{Role: "user", Content: userText},
		{Role: "assistant", Content: assistantText},
	}

	contentHash := hashMessages(messages)

	// Prefer the store-assigned response ID; fall back to a content-only
	// hash so retries of the same logical exchange produce the same key.
	dedupKey := model + ":" + resp.ID
	if resp.ID == "" {
		dedupKey = model + ":" + contentHash
	}

	return &Turn{
		Messages:   messages,
		Model:      model,
		ResponseID: resp.ID,
		RunID:      contentHash[:12],
		DedupKey:   dedupKey,
		CapturedAt: time.Now(),
	}, ""
}

// hashMessages derives a stable hex digest over normalized role/content
// pairs. No wall-clock component: identical exchanges hash identically.
func hashMessages(messages []memory.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
