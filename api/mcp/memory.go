package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
	"github.com/coilworks/mnemo/pkg/utils"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search stored conversation memories using semantic search. Returns the most relevant memories for the query text, including relevance scores and capture metadata."

	listToolName    = "memory_list"
	listDescription = "List all stored memories for a user, most recent first."

	addToolName    = "memory_add"
	addDescription = "Store a piece of information as a new memory. Use this to persist facts or preferences the user wants remembered across sessions."

	deleteToolName    = "memory_delete"
	deleteDescription = "Delete a stored memory by its ID."
)

const previewLength = 200

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"the search query text to find relevant memories"`
	UserID string `json:"user_id,omitempty" jsonschema:"user scope to search within (defaults to the configured user)"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// MemoryResult represents a single memory in tool output.
type MemoryResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchOutput represents the output of the memory_search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []MemoryResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a memory search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	if input.Query == "" {
		return toolError("query is required"), SearchOutput{}, nil
	}

	// Default topK if not specified
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	logger.Debug("MCP memory search request",
		zap.String("query", input.Query),
		zap.Int("topK", topK),
	)

	memories, err := s.config.Store.Search(ctx, input.Query, memory.SearchOptions{
		UserID: s.userID(input.UserID),
		Limit:  topK,
	})
	if err != nil {
		logger.Error("failed to search memories", zap.Error(err))
		return toolError(fmt.Sprintf("Memory search failed: %v", err)), SearchOutput{}, nil
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: toResults(memories),
		Count:   len(memories),
	}
	return toolSuccess(output)
}

// ListInput represents the input arguments for the memory_list tool.
type ListInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"user scope to list (defaults to the configured user)"`
}

// ListOutput represents the output of the memory_list tool.
type ListOutput struct {
	Memories []MemoryResult `json:"memories"`
	Count    int            `json:"count"`
}

// handleList returns all memories for a user.
func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	memories, err := s.config.Store.GetAll(ctx, s.userID(input.UserID))
	if err != nil {
		s.config.Logger.Error("failed to list memories", zap.Error(err))
		return toolError(fmt.Sprintf("Memory list failed: %v", err)), ListOutput{}, nil
	}

	output := ListOutput{
		Memories: toResults(memories),
		Count:    len(memories),
	}
	return toolSuccess(output)
}

// AddInput represents the input arguments for the memory_add tool.
type AddInput struct {
	Text   string `json:"text" jsonschema:"the information to remember"`
	UserID string `json:"user_id,omitempty" jsonschema:"user scope to store under (defaults to the configured user)"`
}

// AddOutput represents the output of the memory_add tool.
type AddOutput struct {
	ID string `json:"id"`
}

// handleAdd stores one piece of information as a memory.
func (s *Server) handleAdd(ctx context.Context, _ *mcp.CallToolRequest, input AddInput) (*mcp.CallToolResult, AddOutput, error) {
	if input.Text == "" {
		return toolError("text is required"), AddOutput{}, nil
	}

	result, err := s.config.Store.Add(ctx, []memory.Message{
		{Role: "user", Content: input.Text},
	}, memory.AddOptions{
		UserID:  s.userID(input.UserID),
		AgentID: s.config.AgentID,
		Metadata: map[string]any{
			"source": "mcp",
		},
	})
	if err != nil {
		s.config.Logger.Error("failed to add memory", zap.Error(err))
		return toolError(fmt.Sprintf("Memory add failed: %v", err)), AddOutput{}, nil
	}

	return toolSuccess(AddOutput{ID: result.ID})
}

// DeleteInput represents the input arguments for the memory_delete tool.
type DeleteInput struct {
	ID string `json:"id" jsonschema:"the ID of the memory to delete"`
}

// DeleteOutput represents the output of the memory_delete tool.
type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

// handleDelete removes one memory by ID.
func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, input DeleteInput) (*mcp.CallToolResult, DeleteOutput, error) {
	if input.ID == "" {
		return toolError("id is required"), DeleteOutput{}, nil
	}

	if err := s.config.Store.Delete(ctx, input.ID); err != nil {
		s.config.Logger.Error("failed to delete memory", zap.Error(err))
		return toolError(fmt.Sprintf("Memory delete failed: %v", err)), DeleteOutput{}, nil
	}

	return toolSuccess(DeleteOutput{Deleted: true})
}

// toResults converts memories into tool output entries with preview-length
// content.
func toResults(memories []memory.Memory) []MemoryResult {
	results := make([]MemoryResult, 0, len(memories))
	for _, m := range memories {
		results = append(results, MemoryResult{
			ID:       m.ID,
			Content:  utils.Truncate(m.Content, previewLength),
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}
	return results
}

// toolError builds an error tool result with the given message.
func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

// toolSuccess serializes the output as the tool result text.
func toolSuccess[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
