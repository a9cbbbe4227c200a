package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
	"github.com/coilworks/mnemo/pkg/reflection"
)

var (
	analyzeToolName    = "analyze_conversations"
	analyzeDescription = "Analyze recent conversation memories for patterns: question frequency, recurring topics, and problem-solving activity. Returns derived insights without storing them."
)

const defaultAnalyzeWindow = 20

// AnalyzeInput represents the input arguments for the analyze_conversations tool.
type AnalyzeInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"user scope to analyze (defaults to the configured user)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of recent memories to analyze (default: 20)"`
}

// AnalyzeInsight is one derived observation.
type AnalyzeInsight struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AnalyzeOutput represents the output of the analyze_conversations tool.
type AnalyzeOutput struct {
	Insights []AnalyzeInsight `json:"insights"`
	Analyzed int              `json:"analyzed"`
}

// handleAnalyze runs the reflection heuristics over recent memories on demand.
func (s *Server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, AnalyzeOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultAnalyzeWindow
	}

	memories, err := s.config.Store.GetAll(ctx, s.userID(input.UserID))
	if err != nil {
		s.config.Logger.Error("failed to fetch memories for analysis", zap.Error(err))
		return toolError(fmt.Sprintf("Analysis failed: %v", err)), AnalyzeOutput{}, nil
	}

	if len(memories) > limit {
		memories = memories[len(memories)-limit:]
	}

	// Stored memories carry no role; the heuristics scan user activity, so
	// each memory is presented as user content.
	messages := make([]memory.Message, 0, len(memories))
	for _, m := range memories {
		messages = append(messages, memory.Message{Role: "user", Content: m.Content})
	}

	insights := reflection.Analyze(messages, nil)

	output := AnalyzeOutput{
		Insights: make([]AnalyzeInsight, 0, len(insights)),
		Analyzed: len(messages),
	}
	for _, insight := range insights {
		output.Insights = append(output.Insights, AnalyzeInsight{
			Type:    insight.Type,
			Content: insight.Content,
		})
	}

	return toolSuccess(output)
}
