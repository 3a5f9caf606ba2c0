package conversation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ParticipantType tags who is speaking/listening in a conversation.
type ParticipantType string

const (
	ParticipantHuman   ParticipantType = "human"
	ParticipantAIModel ParticipantType = "ai_model"
	ParticipantBot     ParticipantType = "bot"
	ParticipantAgent   ParticipantType = "agent"
)

// Recognized rate-limit window names (spec §3, §4.3).
const (
	WindowTurnsPerMinute = "turns_per_minute"
	WindowTurnsPerHour   = "turns_per_hour"
)

var windowDurations = map[string]time.Duration{
	WindowTurnsPerMinute: time.Minute,
	WindowTurnsPerHour:   time.Hour,
}

// ErrIllegalState is returned by AddResponse when there is no incomplete
// turn to complete.
var ErrIllegalState = errors.New("conversation: no incomplete turn to complete")

// RateLimitAction controls what CheckRateLimit does when a limit is
// exceeded.
type RateLimitAction string

const (
	RateLimitSilent RateLimitAction = "silent"
	RateLimitLog    RateLimitAction = "log"
	RateLimitWarn   RateLimitAction = "warn"
	RateLimitRaise  RateLimitAction = "raise"
)

// Conversation is a multi-turn, thread-safe log between two participants.
// A single mutex serializes every mutation of turns, last_activity, and
// the rate-limit event list, mirroring the teacher's per-resource-lock
// pattern used for conversation state elsewhere in the pack.
type Conversation struct {
	mu sync.Mutex

	conversationID string
	initiator      string
	responder      string
	initiatorType  ParticipantType
	responderType  ParticipantType
	modelInfo      map[string]any
	metadata       map[string]any
	createdAt      time.Time
	lastActivity   time.Time

	turns          []Turn
	rateLimit      map[string]int
	rateLimitTurns []time.Time
}

// Option customizes conversation construction.
type Option func(*Conversation)

func WithConversationID(id string) Option {
	return func(c *Conversation) {
		if id != "" {
			c.conversationID = id
		}
	}
}

func WithMetadata(m map[string]any) Option {
	return func(c *Conversation) { c.metadata = cloneMap(m) }
}

func WithModelInfo(m map[string]any) Option {
	return func(c *Conversation) { c.modelInfo = cloneMap(m) }
}

func WithRateLimit(limits map[string]int) Option {
	return func(c *Conversation) { c.rateLimit = cloneIntMap(limits) }
}

func newConversation(initiator, responder string, initiatorType, responderType ParticipantType, opts ...Option) *Conversation {
	now := time.Now()
	c := &Conversation{
		conversationID: uuid.NewString(),
		initiator:      initiator,
		responder:      responder,
		initiatorType:  initiatorType,
		responderType:  responderType,
		modelInfo:      map[string]any{},
		metadata:       map[string]any{},
		createdAt:      now,
		lastActivity:   now,
		rateLimit:      map[string]int{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HumanAI constructs a conversation between a human initiator and an AI
// model responder.
func HumanAI(initiator, responder string, opts ...Option) *Conversation {
	return newConversation(initiator, responder, ParticipantHuman, ParticipantAIModel, opts...)
}

// BotBot constructs a conversation between two bots.
func BotBot(initiator, responder string, opts ...Option) *Conversation {
	return newConversation(initiator, responder, ParticipantBot, ParticipantBot, opts...)
}

// AgentAgent constructs a conversation between two agents.
func AgentAgent(initiator, responder string, opts ...Option) *Conversation {
	return newConversation(initiator, responder, ParticipantAgent, ParticipantAgent, opts...)
}

// HumanHuman constructs a conversation between two humans.
func HumanHuman(initiator, responder string, opts ...Option) *Conversation {
	return newConversation(initiator, responder, ParticipantHuman, ParticipantHuman, opts...)
}

// --- accessors (guardrail.ConversationReader + general getters) -----------

func (c *Conversation) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Conversation) Initiator() string { c.mu.Lock(); defer c.mu.Unlock(); return c.initiator }
func (c *Conversation) Responder() string { c.mu.Lock(); defer c.mu.Unlock(); return c.responder }

// RecentPrompts satisfies guardrail.ConversationReader.
func (c *Conversation) RecentPrompts(limit int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := c.sliceLocked(limit)
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Prompt)
	}
	return out
}

// --- mutation ---------------------------------------------------------------

// AddPrompt appends a new incomplete turn, records the event for rate
// limiting, and updates LastActivity.
func (c *Conversation) AddPrompt(text string, metadata map[string]any) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turn := newTurn(c.initiator, c.responder, text, metadata)
	c.turns = append(c.turns, turn)
	c.recordActivityLocked(turn.Timestamp)
	return turn.clone()
}

// AddResponse completes the most recent incomplete turn. It fails with
// ErrIllegalState if there is no incomplete turn.
func (c *Conversation) AddResponse(text string) (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if !c.turns[i].Complete() {
			resp := text
			c.turns[i].Response = &resp
			c.lastActivity = time.Now()
			return c.turns[i].clone(), nil
		}
	}
	return Turn{}, fmt.Errorf("conversation %s: %w", c.conversationID, ErrIllegalState)
}

// AddExchange appends a single complete turn atomically.
func (c *Conversation) AddExchange(prompt, response string, metadata map[string]any) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turn := newTurn(c.initiator, c.responder, prompt, metadata)
	resp := response
	turn.Response = &resp
	c.turns = append(c.turns, turn)
	c.recordActivityLocked(turn.Timestamp)
	return turn.clone()
}

// AddTurn is the legacy combinator: equivalent to AddExchange when
// response is non-nil, else AddPrompt.
func (c *Conversation) AddTurn(prompt string, response *string) Turn {
	if response != nil {
		return c.AddExchange(prompt, *response, nil)
	}
	return c.AddPrompt(prompt, nil)
}

// CompleteTurn completes the most recent incomplete turn with text,
// merging extra into its metadata; if no turn is incomplete, it appends a
// new complete turn with an empty prompt. Used by callers (the pipeline's
// output stage) that must always end up with a completed turn carrying
// guardrail_results, regardless of whether a prompt was tracked first.
func (c *Conversation) CompleteTurn(text string, extra map[string]any) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if !c.turns[i].Complete() {
			resp := text
			c.turns[i].Response = &resp
			for k, v := range extra {
				c.turns[i].Metadata[k] = v
			}
			c.lastActivity = time.Now()
			return c.turns[i].clone()
		}
	}
	turn := newTurn(c.initiator, c.responder, "", extra)
	resp := text
	turn.Response = &resp
	c.turns = append(c.turns, turn)
	c.recordActivityLocked(turn.Timestamp)
	return turn.clone()
}

// recordActivityLocked must be called with c.mu held.
func (c *Conversation) recordActivityLocked(at time.Time) {
	c.lastActivity = at
	c.rateLimitTurns = append(c.rateLimitTurns, at)
	c.evictLocked()
}

// --- reads -------------------------------------------------------------------

func (c *Conversation) sliceLocked(limit int) []Turn {
	if limit <= 0 || limit >= len(c.turns) {
		return append([]Turn{}, c.turns...)
	}
	return append([]Turn{}, c.turns[len(c.turns)-limit:]...)
}

// GetHistory returns a defensive copy of the last limit turns (all if
// limit <= 0).
func (c *Conversation) GetHistory(limit int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := c.sliceLocked(limit)
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}

func (c *Conversation) GetTurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

func (c *Conversation) GetCompleteTurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.turns {
		if t.Complete() {
			n++
		}
	}
	return n
}

func (c *Conversation) GetIncompleteTurns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Turn
	for _, t := range c.turns {
		if !t.Complete() {
			out = append(out, t.clone())
		}
	}
	return out
}

func (c *Conversation) GetCompleteTurns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Turn
	for _, t := range c.turns {
		if t.Complete() {
			out = append(out, t.clone())
		}
	}
	return out
}

// --- rate limiting -----------------------------------------------------------

// evictLocked truncates rateLimitTurns to the longest configured window,
// bounding memory. Must be called with c.mu held.
func (c *Conversation) evictLocked() {
	longest := time.Duration(0)
	for window := range c.rateLimit {
		if d, ok := windowDurations[window]; ok && d > longest {
			longest = d
		}
	}
	if longest == 0 {
		return
	}
	cutoff := time.Now().Add(-longest)
	i := 0
	for ; i < len(c.rateLimitTurns); i++ {
		if c.rateLimitTurns[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		c.rateLimitTurns = c.rateLimitTurns[i:]
	}
}

// countSince returns the number of recorded events newer than now-window.
func (c *Conversation) countSince(window time.Duration) int {
	cutoff := time.Now().Add(-window)
	n := 0
	for _, ts := range c.rateLimitTurns {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// CheckRateLimit reports whether any configured window is currently
// exceeded. It does not consume quota — recording happens implicitly in
// AddPrompt/AddExchange. A limit <= 0 is always exceeded.
func (c *Conversation) CheckRateLimit(action RateLimitAction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exceeded := false
	for window, limit := range c.rateLimit {
		if limit <= 0 {
			exceeded = true
			continue
		}
		d, ok := windowDurations[window]
		if !ok {
			continue
		}
		if c.countSince(d) > limit {
			exceeded = true
		}
	}
	if exceeded {
		switch action {
		case RateLimitRaise:
			panic(fmt.Sprintf("conversation %s: rate limit exceeded", c.conversationID))
		case RateLimitWarn, RateLimitLog:
			// Surfaced to the caller via the boolean return; logging is the
			// caller's concern since this package has no injected logger.
		}
	}
	return exceeded
}

func (c *Conversation) SetRateLimit(limits map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimit = cloneIntMap(limits)
	c.evictLocked()
}

func (c *Conversation) ResetRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitTurns = nil
}

// --- serialization ------------------------------------------------------------

// ToDict renders the full conversation state for round-trip serialization.
func (c *Conversation) ToDict() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := make([]map[string]any, len(c.turns))
	for i, t := range c.turns {
		tm := map[string]any{
			"timestamp": t.Timestamp.Format(time.RFC3339Nano),
			"speaker":   t.Speaker,
			"listener":  t.Listener,
			"prompt":    t.Prompt,
			"metadata":  t.Metadata,
		}
		if t.Response != nil {
			tm["response"] = *t.Response
		}
		turns[i] = tm
	}
	return map[string]any{
		"conversation_id": c.conversationID,
		"initiator":       c.initiator,
		"responder":       c.responder,
		"initiator_type":  string(c.initiatorType),
		"responder_type":  string(c.responderType),
		"model_info":      cloneMap(c.modelInfo),
		"metadata":        cloneMap(c.metadata),
		"created_at":      c.createdAt.Format(time.RFC3339Nano),
		"last_activity":   c.lastActivity.Format(time.RFC3339Nano),
		"turns":           turns,
		"rate_limit":      cloneIntMap(c.rateLimit),
	}
}

// FromDict reconstructs a Conversation from ToDict's output, preserving
// initiator/responder, types, model_info, metadata, ordered turns, and
// rate-limit config (spec §8 round-trip law).
func FromDict(d map[string]any) (*Conversation, error) {
	c := &Conversation{
		modelInfo: map[string]any{},
		metadata:  map[string]any{},
		rateLimit: map[string]int{},
	}
	if v, ok := d["conversation_id"].(string); ok {
		c.conversationID = v
	} else {
		c.conversationID = uuid.NewString()
	}
	if v, ok := d["initiator"].(string); ok {
		c.initiator = v
	}
	if v, ok := d["responder"].(string); ok {
		c.responder = v
	}
	if v, ok := d["initiator_type"].(string); ok {
		c.initiatorType = ParticipantType(v)
	}
	if v, ok := d["responder_type"].(string); ok {
		c.responderType = ParticipantType(v)
	}
	if v, ok := d["model_info"].(map[string]any); ok {
		c.modelInfo = cloneMap(v)
	}
	if v, ok := d["metadata"].(map[string]any); ok {
		c.metadata = cloneMap(v)
	}
	c.createdAt = parseTimeOr(d["created_at"], time.Now())
	c.lastActivity = parseTimeOr(d["last_activity"], c.createdAt)
	if rl, ok := d["rate_limit"].(map[string]int); ok {
		c.rateLimit = cloneIntMap(rl)
	} else if rl, ok := d["rate_limit"].(map[string]any); ok {
		for k, v := range rl {
			if n, ok := v.(int); ok {
				c.rateLimit[k] = n
			} else if f, ok := v.(float64); ok {
				c.rateLimit[k] = int(f)
			}
		}
	}
	if rawTurns, ok := d["turns"].([]map[string]any); ok {
		c.turns = make([]Turn, 0, len(rawTurns))
		for _, rt := range rawTurns {
			c.turns = append(c.turns, turnFromDict(rt))
		}
	} else if rawTurns, ok := d["turns"].([]any); ok {
		c.turns = make([]Turn, 0, len(rawTurns))
		for _, item := range rawTurns {
			if rt, ok := item.(map[string]any); ok {
				c.turns = append(c.turns, turnFromDict(rt))
			}
		}
	}
	return c, nil
}

func turnFromDict(rt map[string]any) Turn {
	t := Turn{Metadata: map[string]any{}}
	if v, ok := rt["speaker"].(string); ok {
		t.Speaker = v
	}
	if v, ok := rt["listener"].(string); ok {
		t.Listener = v
	}
	if v, ok := rt["prompt"].(string); ok {
		t.Prompt = v
	}
	if v, ok := rt["response"].(string); ok {
		resp := v
		t.Response = &resp
	}
	if v, ok := rt["metadata"].(map[string]any); ok {
		t.Metadata = cloneMap(v)
	}
	t.Timestamp = parseTimeOr(rt["timestamp"], time.Now())
	return t
}

func parseTimeOr(v any, fallback time.Time) time.Time {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return ts
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// sortedWindowNames returns window keys in deterministic order, useful for
// status reporting.
func sortedWindowNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
