package capture

import (
	"sync"

	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/llm"
	"github.com/coilworks/mnemo/pkg/llm/anthropic"
)

// FlowContext is the per-exchange state stashed between the request and
// response hooks of one flow. It is owned by the Correlator and discarded
// once the exchange is done.
type FlowContext struct {
	Request   *llm.ChatRequest
	processed bool
}

// Correlator pairs an observed response with the request that produced it,
// scoped to one flow ID, and guards against double-processing. Per-flow
// stashes and the process-wide dedup set share one mutex; both are touched
// on every response.
type Correlator struct {
	mu sync.Mutex

	// flows maps flow ID -> stashed request state for in-flight exchanges.
	flows map[string]*FlowContext

	// processed holds dedup keys of turns already persisted.
	processed map[string]struct{}

	logger *zap.Logger
}

// NewCorrelator creates an empty correlator.
func NewCorrelator(logger *zap.Logger) *Correlator {
	return &Correlator{
		flows:     make(map[string]*FlowContext),
		processed: make(map[string]struct{}),
		logger:    logger,
	}
}

// ObserveRequest parses and stashes a request body under the flow ID.
// Bodies that fail to parse are dropped silently — the traffic path must
// continue unaffected, and an unparsable request can never produce a turn.
func (c *Correlator) ObserveRequest(flowID string, body []byte) {
	req, err := anthropic.ParseRequest(body)
	if err != nil {
		c.logger.Debug("ignoring unparsable request body",
			zap.String("flow_id", flowID),
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.flows[flowID] = &FlowContext{Request: req}
}

// Lookup returns the stashed request for a flow and whether the flow has
// already been processed.
func (c *Correlator) Lookup(flowID string) (req *llm.ChatRequest, processed, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fc, ok := c.flows[flowID]
	if !ok {
		return nil, false, false
	}
	return fc.Request, fc.processed, true
}

// Seen reports whether a dedup key has already been persisted.
func (c *Correlator) Seen(dedupKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, seen := c.processed[dedupKey]
	return seen
}

// MarkProcessed records the flow as done. A non-empty dedup key is added to
// the process-wide set so the same logical exchange is never persisted
// twice, regardless of which flow carries it.
func (c *Correlator) MarkProcessed(flowID, dedupKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fc, ok := c.flows[flowID]; ok {
		fc.processed = true
	}
	if dedupKey != "" {
		c.processed[dedupKey] = struct{}{}
	}
}

// Forget drops all state for a flow. Host adapters call this when the
// exchange finishes or errors, so flows that never see a response do not
// leak.
func (c *Correlator) Forget(flowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flows, flowID)
}

// InFlight returns the number of flows currently stashed.
func (c *Correlator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flows)
}
