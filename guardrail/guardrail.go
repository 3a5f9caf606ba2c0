// Package guardrail defines the uniform evaluation contract every content
// guardrail satisfies, independent of what it actually detects.
package guardrail

import (
	"context"
)

// OnError is the policy applied when a guardrail's Analyze call fails or
// panics. It is expressed as a tagged variant rather than relying on
// exceptions crossing the guardrail boundary.
type OnError string

const (
	OnErrorBlock OnError = "block"
	OnErrorWarn  OnError = "warn"
	OnErrorAllow OnError = "allow"
)

func (e OnError) Valid() bool {
	switch e {
	case OnErrorBlock, OnErrorWarn, OnErrorAllow:
		return true
	default:
		return false
	}
}

// Result is produced by every guardrail evaluation. blocked and warned are
// never both true; if neither is set the evaluation is a silent allow.
type Result struct {
	Blocked       bool           `json:"blocked"`
	Warned        bool           `json:"warned"`
	Reason        string         `json:"reason,omitempty"`
	Confidence    float64        `json:"confidence"`
	Details       map[string]any `json:"details,omitempty"`
	Indicators    []string       `json:"indicators,omitempty"`
	GuardrailName string         `json:"guardrail_name"`
	GuardrailType string         `json:"guardrail_type"`
}

// Allow reports whether the result is a plain allow (neither blocked nor
// warned).
func (r Result) Allow() bool { return !r.Blocked && !r.Warned }

// AsMap renders the result the way PipelineResult.details expects it:
// guardrail_name -> GuardrailResult-as-map.
func (r Result) AsMap() map[string]any {
	m := map[string]any{
		"blocked":        r.Blocked,
		"warned":         r.Warned,
		"reason":         r.Reason,
		"confidence":     r.Confidence,
		"guardrail_name": r.GuardrailName,
		"guardrail_type": r.GuardrailType,
	}
	if len(r.Details) > 0 {
		m["details"] = r.Details
	}
	if len(r.Indicators) > 0 {
		m["indicators"] = r.Indicators
	}
	return m
}

// ConversationReader is the read-only slice of conversation.Conversation a
// guardrail is allowed to see. It is satisfied by *conversation.Conversation
// but declared here so this package has no import dependency on the
// conversation package, keeping the contract a leaf.
type ConversationReader interface {
	ConversationID() string
	// RecentPrompts returns up to limit of the most recent prompt texts,
	// oldest first. limit <= 0 means all.
	RecentPrompts(limit int) []string
}

// Guardrail is the abstract entity every detector implements. Instances are
// constructed once at pipeline build time, shared across concurrent calls,
// and must tolerate concurrent Analyze invocations.
type Guardrail interface {
	Name() string
	Type() string
	Enabled() bool
	OnError() OnError

	// Analyze evaluates text, optionally in the context of a conversation.
	// Implementations may suspend on I/O and must respect ctx cancellation.
	// Analyze must not mutate the conversation.
	Analyze(ctx context.Context, text string, conv ConversationReader) (Result, error)

	// IsAvailable is synchronous and must not block on network.
	IsAvailable() bool

	// HealthSnapshot includes at minimum name/type/enabled/available plus
	// any detector-specific counters.
	HealthSnapshot() map[string]any
}

// ConfigUpdater is an optional capability: guardrails that support live
// reconfiguration implement it. Updates must be atomic from the caller's
// perspective.
type ConfigUpdater interface {
	UpdateConfig(partial map[string]any) (bool, error)
}

// ErrorKind enumerates the construction-time failure classes from spec
// §4.1. These are never raised as panics; callers get them as a typed
// *Error.
type ErrorKind string

const (
	ErrInvalidType        ErrorKind = "invalid_guardrail_type"
	ErrMissingField       ErrorKind = "missing_required_field"
	ErrConfiguration      ErrorKind = "configuration_error"
)

// Error is the error type raised at construction by the registry/factory
// or by an individual guardrail's constructor.
type Error struct {
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Name != "" {
		return string(e.Kind) + ": " + e.Name + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

func newError(kind ErrorKind, name, message string) *Error {
	return &Error{Kind: kind, Name: name, Message: message}
}
