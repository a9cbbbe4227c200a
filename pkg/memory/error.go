package memory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a memory doesn't exist in the store.
var ErrNotFound = errors.New("memory not found")

// ErrorKind is the fixed classification a store failure maps to. Retry and
// logging decisions key off the kind rather than the backend's raw error.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindValidation ErrorKind = "validation"
	KindGeneric    ErrorKind = "generic"
)

// ClassifiedError wraps a store failure with its classification. The
// original cause is retained for diagnostics and errors.Is/As chains.
type ClassifiedError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("memory %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify maps a raw driver error to a ClassifiedError for the given
// operation. Matching is a case-insensitive substring check against the
// error text, first match wins:
//
//	"timeout"                  -> KindTimeout
//	"connection" or "network"  -> KindConnection
//	"invalid" or "bad request" -> KindValidation
//	anything else              -> KindGeneric
func Classify(op string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// Already classified (e.g. re-wrapped by a caller) — keep the kind.
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	msg := strings.ToLower(err.Error())

	kind := KindGeneric
	switch {
	case strings.Contains(msg, "timeout"):
		kind = KindTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		kind = KindConnection
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "bad request"):
		kind = KindValidation
	}

	return &ClassifiedError{Kind: kind, Op: op, Err: err}
}
