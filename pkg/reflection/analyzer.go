package reflection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
)

// ReflectionSource marks memories produced by the analyzer, distinguishing
// them from captured turns.
const ReflectionSource = "mnemo_reflection"

// topicKeywords are the focus areas the analyzer looks for in user messages.
var topicKeywords = []string{
	"python", "javascript", "go", "rust", "typescript",
	"api", "database", "testing", "deployment", "docker",
	"function", "error", "bug", "performance",
}

// approachKeywords signal problem-solving activity in a message.
var approachKeywords = []string{
	"how to", "implement", "fix", "debug", "optimize", "refactor",
}

// Insight is one derived observation about the recent conversation window.
type Insight struct {
	// Type categorizes the insight (frequent_questions, focus_area,
	// problem_solving_pattern).
	Type string

	// Content is the human-readable insight text.
	Content string
}

// Analyzer is a keyword-heuristic Reflector. It scans the window for
// question density, recurring topics, and problem-solving patterns, and
// stores each derived insight back into the memory store.
type Analyzer struct {
	store   *memory.Client
	userID  string
	agentID string
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer storing insights under the given identity.
func NewAnalyzer(store *memory.Client, userID, agentID string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		store:   store,
		userID:  userID,
		agentID: agentID,
		logger:  logger,
	}
}

// Reflect derives insights from the message window and persists them. The
// related memories inform insight content but are never modified.
func (a *Analyzer) Reflect(ctx context.Context, messages []memory.Message, related []memory.Memory) error {
	insights := Analyze(messages, related)
	if len(insights) == 0 {
		a.logger.Debug("no insights derived from window",
			zap.Int("window_messages", len(messages)),
		)
		return nil
	}

	for _, insight := range insights {
		_, err := a.store.Add(ctx, []memory.Message{
			{Role: "assistant", Content: insight.Content},
		}, memory.AddOptions{
			UserID:  a.userID,
			AgentID: a.agentID,
			Metadata: map[string]any{
				"source":       ReflectionSource,
				"insight_type": insight.Type,
				"timestamp":    time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return fmt.Errorf("storing %s insight: %w", insight.Type, err)
		}

		a.logger.Info("stored reflection insight",
			zap.String("insight_type", insight.Type),
		)
	}

	return nil
}

// Analyze derives insights from a message window. Pure function; the
// scheduler's workers call it through Reflect and the analysis tool calls it
// directly on fetched history.
func Analyze(messages []memory.Message, related []memory.Memory) []Insight {
	userTexts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "user" && msg.Content != "" {
			userTexts = append(userTexts, strings.ToLower(msg.Content))
		}
	}
	if len(userTexts) == 0 {
		return nil
	}

	var insights []Insight

	questions := 0
	for _, text := range userTexts {
		questions += strings.Count(text, "?")
	}
	if questions > 3 {
		insights = append(insights, Insight{
			Type: "frequent_questions",
			Content: fmt.Sprintf(
				"User asked %d questions in the recent conversation window, suggesting active exploration of unfamiliar territory.",
				questions,
			),
		})
	}

	if topic, count := dominantTopic(userTexts); count >= 2 {
		insights = append(insights, Insight{
			Type: "focus_area",
			Content: fmt.Sprintf(
				"User's recent conversation centers on %s (%d mentions in the last %d messages).",
				topic, count, len(messages),
			),
		})
	}

	approaches := 0
	for _, text := range userTexts {
		for _, kw := range approachKeywords {
			if strings.Contains(text, kw) {
				approaches++
				break
			}
		}
	}
	if approaches > 2 {
		content := fmt.Sprintf(
			"User is actively working through implementation problems (%d of %d recent messages show problem-solving activity).",
			approaches, len(userTexts),
		)
		if len(related) > 0 {
			content += fmt.Sprintf(" %d related memories exist from earlier sessions.", len(related))
		}
		insights = append(insights, Insight{
			Type:    "problem_solving_pattern",
			Content: content,
		})
	}

	return insights
}

// dominantTopic returns the most-mentioned topic keyword and its count.
// Ties break alphabetically so results are deterministic.
func dominantTopic(userTexts []string) (string, int) {
	counts := make(map[string]int)
	for _, text := range userTexts {
		for _, kw := range topicKeywords {
			if strings.Contains(text, kw) {
				counts[kw]++
			}
		}
	}
	if len(counts) == 0 {
		return "", 0
	}

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	best, bestCount := "", 0
	for _, topic := range topics {
		if counts[topic] > bestCount {
			best, bestCount = topic, counts[topic]
		}
	}
	return best, bestCount
}
