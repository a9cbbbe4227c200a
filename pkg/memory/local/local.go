// Package local provides an in-process implementation of the memory.Driver
// interface. Search is naive substring matching — this is a local-dev and
// test story, not a semantic index.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coilworks/mnemo/pkg/memory"
)

// Driver implements memory.Driver using in-process data structures.
type Driver struct {
	mu sync.RWMutex

	// records maps user ID -> stored memories in insertion order.
	records map[string][]memory.Memory
	nextID  int
}

// NewDriver creates a local in-memory memory driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string][]memory.Memory),
	}
}

// Add joins the messages into one record and stores it under the user ID.
func (d *Driver) Add(_ context.Context, messages []memory.Message, opts memory.AddOptions) (*memory.AddResult, error) {
	var parts []string
	for _, msg := range messages {
		parts = append(parts, msg.Role+": "+msg.Content)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := fmt.Sprintf("mem-%d", d.nextID)

	d.records[opts.UserID] = append(d.records[opts.UserID], memory.Memory{
		ID:        id,
		Content:   strings.Join(parts, "\n"),
		Metadata:  opts.Metadata,
		CreatedAt: time.Now(),
	})

	return &memory.AddResult{ID: id}, nil
}

// Search returns memories whose content contains the query, case-insensitive.
func (d *Driver) Search(_ context.Context, query string, opts memory.SearchOptions) ([]memory.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	needle := strings.ToLower(query)

	var out []memory.Memory
	for _, m := range d.records[opts.UserID] {
		if needle == "" || strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, m)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	}
	return out, nil
}

// GetAll lists every memory stored for the user.
func (d *Driver) GetAll(_ context.Context, userID string) ([]memory.Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]memory.Memory, len(d.records[userID]))
	copy(out, d.records[userID])
	return out, nil
}

// Delete removes one memory by ID across all users.
func (d *Driver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for userID, memories := range d.records {
		for i, m := range memories {
			if m.ID == id {
				d.records[userID] = append(memories[:i], memories[i+1:]...)
				return nil
			}
		}
	}
	return memory.ErrNotFound
}

// DeleteAll removes every memory stored for the user.
func (d *Driver) DeleteAll(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.records, userID)
	return nil
}

// Close releases driver resources.
func (d *Driver) Close() error {
	return nil
}
