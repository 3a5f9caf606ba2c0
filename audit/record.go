package audit

import "time"

// EventType enumerates the record kinds spec §4.6 requires.
type EventType string

const (
	EventAuditEnabled     EventType = "audit_trail_enabled"
	EventUserPrompt       EventType = "user_prompt"
	EventLLMResponse      EventType = "llm_response"
	EventGuardrailDecision EventType = "guardrail_decision"
	EventError            EventType = "error"
)

// Decision is the verdict recorded on a guardrail_decision event.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
	DecisionWarn  Decision = "warn"
	DecisionError Decision = "error"
)

// Record is one JSON-Lines entry. Every event carries Timestamp and
// EventType; the rest are populated per event type (spec §4.6's table).
// All fields use omitempty so a record only shows what applies to its
// event type, keeping the on-disk JSON close to the source format.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`

	// audit_trail_enabled
	Destination   string `json:"destination,omitempty"`
	RedactPII     *bool  `json:"redact_pii,omitempty"`
	BufferSize    int    `json:"buffer_size,omitempty"`
	FlushInterval float64 `json:"flush_interval,omitempty"`

	// user_prompt / llm_response
	Prompt           string  `json:"prompt,omitempty"`
	Response         string  `json:"response,omitempty"`
	ModelUsed        string  `json:"model_used,omitempty"`
	ProcessingTimeMs float64 `json:"processing_time_ms,omitempty"`

	// guardrail_decision
	GuardrailName  string   `json:"guardrail_name,omitempty"`
	Decision       Decision `json:"decision,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	RuleTriggered  string   `json:"rule_triggered,omitempty"`

	// error
	Message string         `json:"message,omitempty"`
	Context map[string]any `json:"context,omitempty"`

	// shared optional identity fields
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}
