package remote

import (
	"encoding/json"
	"time"

	"github.com/coilworks/mnemo/pkg/memory"
)

// addRequest is the POST /v1/memories/ payload.
type addRequest struct {
	Messages []memory.Message `json:"messages"`
	UserID   string           `json:"user_id,omitempty"`
	AgentID  string           `json:"agent_id,omitempty"`
	RunID    string           `json:"run_id,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Version  string           `json:"version,omitempty"`
}

// addResponse covers both response shapes the service emits: a bare object
// with an id, or a v1.1-style results list.
type addResponse struct {
	ID      string       `json:"id"`
	Results []memoryItem `json:"results"`
}

// searchRequest is the POST /v2/memories/search/ payload.
type searchRequest struct {
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters"`
	TopK    int            `json:"top_k,omitempty"`
}

// listResponse covers search and list responses: either a bare array or a
// results-wrapped list depending on API version.
type listResponse struct {
	Results []memoryItem `json:"results"`

	// items is populated when the body is a bare JSON array.
	items []memoryItem
}

// UnmarshalJSON accepts both `[...]` and `{"results": [...]}` bodies.
func (l *listResponse) UnmarshalJSON(data []byte) error {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return json.Unmarshal(data, &l.items)
		default:
			type alias listResponse
			return json.Unmarshal(data, (*alias)(l))
		}
	}
	return nil
}

func (l *listResponse) memories() []memory.Memory {
	items := l.Results
	if len(items) == 0 {
		items = l.items
	}

	out := make([]memory.Memory, 0, len(items))
	for _, item := range items {
		out = append(out, memory.Memory{
			ID:        item.ID,
			Content:   item.Memory,
			Score:     item.Score,
			Metadata:  item.Metadata,
			CreatedAt: item.CreatedAt,
		})
	}
	return out
}

// memoryItem is one stored memory as the service returns it.
type memoryItem struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Score     float64        `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitzero"`
}
