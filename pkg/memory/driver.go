// Package memory provides a pluggable client layer over the remote memory
// store that holds captured conversation turns.
//
// A [Driver] speaks to one backend (the hosted service, a local SQLite file,
// or an in-process map for tests). The [Client] wraps any driver with the
// bounded-retry and error-classification policy that every caller of the
// store goes through; only Add sits on the proxy's capture hot path, the
// remaining operations serve the tool surface.
package memory

import (
	"context"
	"time"
)

// Message is a single role/content entry as the memory store consumes it.
// Content is already normalized to plain text by the capture pipeline.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Memory is one stored record as returned by search/list operations.
type Memory struct {
	ID        string         `json:"id"`
	Content   string         `json:"memory"`
	Score     float64        `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitzero"`
}

// AddResult is the store's acknowledgement of a persisted memory.
type AddResult struct {
	ID string `json:"id"`
}

// AddOptions carries identity and metadata attached to a stored memory.
type AddOptions struct {
	UserID   string
	AgentID  string
	RunID    string
	Metadata map[string]any
}

// SearchOptions bounds a semantic search.
type SearchOptions struct {
	UserID string
	Limit  int
}

// Driver is the minimal operation set the memory store exposes. All calls
// may fail with a plain error; retry and classification live in Client, not
// in driver implementations.
type Driver interface {
	// Add persists a set of messages as one memory and returns the
	// store-assigned ID.
	Add(ctx context.Context, messages []Message, opts AddOptions) (*AddResult, error)

	// Search runs a semantic query over the user's memories.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Memory, error)

	// GetAll lists every memory stored for the user.
	GetAll(ctx context.Context, userID string) ([]Memory, error)

	// Delete removes a single memory by ID.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every memory stored for the user.
	DeleteAll(ctx context.Context, userID string) error

	// Close releases driver resources.
	Close() error
}
