// Package errs defines the error taxonomy shared across the ingestion
// pipeline, the analytics materialiser, and the agent runtime. Every error
// that crosses a package boundary should be classified into one of these
// kinds so callers can decide whether to retry, dead-letter, or surface a
// message to an end user.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an error for retry/propagation policy purposes.
type Kind string

const (
	// InvalidInput covers malformed payloads and tool-call arguments that
	// fail schema validation. Never retried.
	InvalidInput Kind = "invalid_input"
	// Unauthorized covers a webhook request that fails HMAC signature
	// verification. Distinct from InvalidInput because the two map to
	// different HTTP statuses (401 vs 400) per spec.md §4.2/§6.
	Unauthorized Kind = "unauthorized"
	// UpstreamUnavailable covers transient failures talking to the LLM,
	// embedding, or store backends. Retried with backoff up to a cap.
	UpstreamUnavailable Kind = "upstream_unavailable"
	// Timeout covers a per-operation deadline being exceeded.
	Timeout Kind = "timeout"
	// NotFound covers a lookup (developer, thread, project) that legitimately
	// has no result. Never a crash, always a structured payload.
	NotFound Kind = "not_found"
	// QuotaExceeded covers rate limits and ingestion backpressure.
	QuotaExceeded Kind = "quota_exceeded"
	// Internal covers assertion failures and configuration errors (e.g. an
	// embedding dimension mismatch). Logged with full context; never exposes
	// detail to the caller.
	Internal Kind = "internal"
)

// Error is the taxonomy-tagged error value propagated across package
// boundaries. Its Error() string is safe to log; Message is the shorter,
// user-facing string returned over the API.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a taxonomy error around an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts a *Error from err, if any exists in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err, defaulting to Internal when err
// carries no *Error in its chain.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Payload is the JSON shape returned to API callers and fed back to the LLM
// as a tool-result message when a tool invocation fails.
type Payload struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// ToPayload converts err into the wire-level error payload, never leaking
// wrapped internal detail for Internal-kind errors.
func ToPayload(err error) Payload {
	e, ok := As(err)
	if !ok {
		return Payload{ErrorCode: string(Internal), Message: "internal error"}
	}
	if e.Kind == Internal {
		return Payload{ErrorCode: string(Internal), Message: "internal error"}
	}
	return Payload{ErrorCode: string(e.Kind), Message: e.Message}
}

// MarshalJSON lets an *Error be returned directly as a tool-result payload.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToPayload(e))
}
