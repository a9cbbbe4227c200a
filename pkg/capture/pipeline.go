// Package capture implements the traffic-capture and conversation
// reconstruction pipeline: correlating request/response pairs per flow,
// assembling complete payloads from event streams, extracting conversation
// turns, and persisting them through the retrying memory client.
//
// Nothing in this package raises out of the hook boundary; every failure is
// converted to a logged Outcome so the proxied traffic is never disturbed.
package capture

import (
	"bytes"
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/llm"
	"github.com/coilworks/mnemo/pkg/llm/anthropic"
	"github.com/coilworks/mnemo/pkg/memory"
)

// TurnSink receives successfully persisted turns together with the
// store-assigned memory ID. The reflection scheduler implements this to
// maintain its rolling window off the capture path; the eventstream sink
// implements it to emit turn events.
type TurnSink interface {
	TurnPersisted(turn *Turn, memoryID string)
}

// MultiSink fans one persisted turn out to several sinks in order.
type MultiSink []TurnSink

func (m MultiSink) TurnPersisted(turn *Turn, memoryID string) {
	for _, s := range m {
		s.TurnPersisted(turn, memoryID)
	}
}

// Config holds capture pipeline settings.
type Config struct {
	// UserID and AgentID identify stored memories.
	UserID  string
	AgentID string

	// ExcludedModels are model-identifier substrings never persisted.
	ExcludedModels []string
}

// Pipeline owns all mutable capture state (flow stashes, dedup bookkeeping)
// and implements the Interceptor host contract.
type Pipeline struct {
	config     Config
	correlator *Correlator
	builder    *TurnBuilder
	store      *memory.Client
	sink       TurnSink
	logger     *zap.Logger
}

// NewPipeline creates a capture pipeline. The sink may be nil when no
// reflection scheduling is wanted.
func NewPipeline(config Config, store *memory.Client, sink TurnSink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		config:     config,
		correlator: NewCorrelator(logger),
		builder:    NewTurnBuilder(config.ExcludedModels),
		store:      store,
		sink:       sink,
		logger:     logger,
	}
}

// OnRequest stashes the parsed request body for the flow. Parse failures
// are swallowed; a flow without a stashed request simply never produces a
// turn.
func (p *Pipeline) OnRequest(_ context.Context, flowID string, body []byte) {
	p.correlator.ObserveRequest(flowID, body)
}

// OnResponse correlates, reconstructs, and persists one observed response.
// It never panics out to the host: any escaped failure is caught here and
// reported as a parse-error outcome.
func (p *Pipeline) OnResponse(ctx context.Context, flowID string, body []byte, contentType string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capture pipeline panic recovered",
				zap.String("flow_id", flowID),
				zap.Any("panic", r),
			)
			outcome = Outcome{Reason: ReasonParseError}
		}
	}()

	req, processed, ok := p.correlator.Lookup(flowID)
	if !ok {
		return Outcome{Reason: ReasonNoRequest}
	}
	if processed {
		return Outcome{Reason: ReasonAlreadyProcessed}
	}

	resp, ok := p.parseResponse(flowID, body, contentType)
	if !ok {
		if isEventStream(contentType) {
			// Not an error: the stream has not finished yet. Leave all
			// flow state untouched so a later invocation can complete.
			return Outcome{Reason: ReasonIncompleteStream}
		}
		return Outcome{Reason: ReasonParseError}
	}

	turn, skipReason := p.builder.Build(req, resp)
	if turn == nil {
		// Reconstruction completed; the flow is done even though nothing
		// is worth persisting.
		p.correlator.MarkProcessed(flowID, "")
		return Outcome{Reason: skipReason}
	}

	if p.correlator.Seen(turn.DedupKey) {
		p.correlator.MarkProcessed(flowID, turn.DedupKey)
		return Outcome{Reason: ReasonAlreadyProcessed}
	}

	result, err := p.store.Add(ctx, turn.Messages, memory.AddOptions{
		UserID:   p.config.UserID,
		AgentID:  p.config.AgentID,
		RunID:    turn.RunID,
		Metadata: turn.Metadata(),
	})
	if err != nil {
		// The flow stays unprocessed so a retried delivery of the same
		// exchange can attempt persistence again.
		p.logger.Error("failed to persist conversation turn",
			zap.String("flow_id", flowID),
			zap.String("run_id", turn.RunID),
			zap.Error(err),
		)
		return Outcome{Reason: ReasonStoreFailed}
	}

	p.correlator.MarkProcessed(flowID, turn.DedupKey)

	p.logger.Info("stored conversation turn",
		zap.String("memory_id", result.ID),
		zap.String("flow_id", flowID),
		zap.String("run_id", turn.RunID),
		zap.String("model", turn.Model),
		zap.Int("message_count", len(turn.Messages)),
	)

	if p.sink != nil {
		p.sink.TurnPersisted(turn, result.ID)
	}

	return Outcome{Stored: true, TurnID: result.ID}
}

// CaptureExchange is the single-shot entry point for hosts that hold both
// payloads at once: it runs the request and response hooks under a fresh
// flow identity and releases the flow state afterwards.
func (p *Pipeline) CaptureExchange(ctx context.Context, requestBody, responseBody []byte, contentType string) Outcome {
	flowID := uuid.NewString()
	defer p.Forget(flowID)

	p.OnRequest(ctx, flowID, requestBody)
	return p.OnResponse(ctx, flowID, responseBody, contentType)
}

// Forget releases all state for a flow.
func (p *Pipeline) Forget(flowID string) {
	p.correlator.Forget(flowID)
}

// parseResponse assembles a complete response payload from either a single
// JSON document or an accumulated SSE stream.
func (p *Pipeline) parseResponse(flowID string, body []byte, contentType string) (*llm.ChatResponse, bool) {
	if isEventStream(contentType) {
		return ReconstructStream(bytes.NewReader(body))
	}

	resp, err := anthropic.ParseResponse(body)
	if err != nil {
		p.logger.Warn("failed to parse response body",
			zap.String("flow_id", flowID),
			zap.Error(err),
		)
		return nil, false
	}
	return resp, true
}

func isEventStream(contentType string) bool {
	return strings.HasPrefix(contentType, "text/event-stream")
}
