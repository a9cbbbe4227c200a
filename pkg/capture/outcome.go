package capture

import "context"

// Skip reasons reported in an Outcome when no turn was persisted.
const (
	ReasonNoRequest        = "no_request"
	ReasonAlreadyProcessed = "already_processed"
	ReasonIncompleteStream = "incomplete_stream"
	ReasonParseError       = "parse_error"
	ReasonEmptyTurn        = "empty_turn"
	ReasonExcludedModel    = "excluded_model"
	ReasonStoreFailed      = "store_failed"
)

// Outcome reports what the capture pipeline did with one observed exchange.
// Failures inside the pipeline surface here as reasons, never as panics or
// errors into the traffic path.
type Outcome struct {
	// Stored is true when a conversation turn was persisted.
	Stored bool

	// TurnID is the store-assigned memory ID when Stored is true.
	TurnID string

	// Reason explains why nothing was persisted when Stored is false.
	Reason string
}

// Interceptor is the narrow contract a traffic host invokes per flow. Any
// host adapter (the built-in proxy, tests) drives capture exclusively
// through these two hooks, keeping reconstruction and persistence logic
// host-agnostic.
type Interceptor interface {
	// OnRequest is invoked when a request body has been observed for a flow.
	OnRequest(ctx context.Context, flowID string, body []byte)

	// OnResponse is invoked when the flow's response delivery completes.
	// For streaming responses it may be invoked repeatedly with the bytes
	// accumulated so far; incomplete streams yield an incomplete-stream
	// outcome and leave all flow state untouched.
	OnResponse(ctx context.Context, flowID string, body []byte, contentType string) Outcome
}
