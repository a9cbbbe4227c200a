// Package eventstream defines transport-neutral events emitted after
// conversation turns are persisted, plus the publisher contract backends
// implement.
package eventstream

import (
	"time"

	"github.com/coilworks/mnemo/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "mnemo.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Turn          TurnMeta    `json:"turn"`
}

// EventSource identifies the capture identity that produced the turn.
type EventSource struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`
}

// TurnMeta captures persistence metadata and content for the stored turn.
type TurnMeta struct {
	// MemoryID is the store-assigned identifier of the persisted memory.
	MemoryID string `json:"memory_id"`

	// RunID is the content-derived session identifier.
	RunID string `json:"run_id"`

	// Model is the responding model identifier.
	Model string `json:"model"`

	// ResponseID is the upstream-assigned response ID, when present.
	ResponseID string `json:"response_id,omitempty"`

	// CapturedAt is when the turn was assembled by the capture pipeline.
	CapturedAt time.Time `json:"captured_at"`

	// Messages is the normalized user/assistant exchange.
	Messages []memory.Message `json:"messages"`
}
