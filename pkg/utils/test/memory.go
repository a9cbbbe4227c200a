// Package testutils provides shared test doubles.
package testutils

import (
	"context"
	"fmt"

	"github.com/coilworks/mnemo/pkg/memory"
)

// MockMemoryDriver is a test memory driver that records calls and returns
// configurable results and failures.
type MockMemoryDriver struct {
	// AddCalls counts invocations of Add.
	AddCalls int

	// SearchCalls counts invocations of Search.
	SearchCalls int

	// Stored accumulates messages passed to successful Add calls.
	Stored [][]memory.Message

	// SearchResults is returned by Search when it succeeds.
	SearchResults []memory.Memory

	// FailAddTimes makes the first N Add calls fail with AddErr.
	FailAddTimes int

	// AddErr is the error returned by failing Add calls.
	AddErr error

	// SearchErr, when set, makes every Search call fail.
	SearchErr error
}

// NewMockMemoryDriver creates a new mock memory driver.
func NewMockMemoryDriver() *MockMemoryDriver {
	return &MockMemoryDriver{}
}

func (m *MockMemoryDriver) Add(_ context.Context, messages []memory.Message, _ memory.AddOptions) (*memory.AddResult, error) {
	m.AddCalls++
	if m.FailAddTimes > 0 {
		m.FailAddTimes--
		err := m.AddErr
		if err == nil {
			err = fmt.Errorf("add failed")
		}
		return nil, err
	}
	m.Stored = append(m.Stored, messages)
	return &memory.AddResult{ID: fmt.Sprintf("mock-%d", len(m.Stored))}, nil
}

func (m *MockMemoryDriver) Search(_ context.Context, _ string, _ memory.SearchOptions) ([]memory.Memory, error) {
	m.SearchCalls++
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.SearchResults, nil
}

func (m *MockMemoryDriver) GetAll(_ context.Context, _ string) ([]memory.Memory, error) {
	results := make([]memory.Memory, 0, len(m.Stored))
	for i, messages := range m.Stored {
		for _, msg := range messages {
			results = append(results, memory.Memory{
				ID:      fmt.Sprintf("mock-%d", i+1),
				Content: msg.Content,
			})
		}
	}
	return results, nil
}

func (m *MockMemoryDriver) Delete(_ context.Context, _ string) error {
	return nil
}

func (m *MockMemoryDriver) DeleteAll(_ context.Context, _ string) error {
	m.Stored = nil
	return nil
}

func (m *MockMemoryDriver) Close() error {
	return nil
}
