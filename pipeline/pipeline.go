// Package pipeline is the engine core: it turns a two-stage guardrail
// config into a running Pipeline that evaluates prompts and responses,
// fuses their verdicts, and optionally attaches the result to a
// conversation turn.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stinger-run/stinger/conversation"
	"github.com/stinger-run/stinger/guardrail"
	"github.com/stinger-run/stinger/internal/logging"
)

// Stage selects which guardrail list a call or an enable/disable
// operation targets.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
	StageBoth   Stage = "both"
)

// AuditSink is the subset of the audit trail a pipeline call needs. It is
// declared here, not imported from package audit, so pipeline has no
// dependency on the audit package; callers wire a concrete *audit.Trail
// (or a test double) in.
type AuditSink interface {
	LogPrompt(ctx context.Context, prompt, userID, conversationID, requestID string)
	LogResponse(ctx context.Context, response, userID, conversationID, requestID, modelUsed string, processingTimeMs float64)
	LogGuardrailDecision(ctx context.Context, guardrailName, decision, reason string, confidence float64, userID, conversationID, requestID string)
	LogError(ctx context.Context, message string, context map[string]any)
}

// HealthRecorder is the subset of the health monitor a pipeline call
// needs, declared locally for the same reason as AuditSink.
type HealthRecorder interface {
	RecordRequest(responseTimeMs float64, blocked bool)
}

// Tracer is the subset of the telemetry layer a pipeline call records
// spans through, declared locally for the same reason as AuditSink. The
// returned func must be called exactly once with the call's outcome
// (nil for success) to end the span.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(err error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, func(err error)) {
	return ctx, func(error) {}
}

// stageEntry pairs a constructed guardrail with its declared config and a
// pipeline-owned enabled flag, which is independent of the guardrail's
// own Enabled() (that one reflects the detector's internal state, this
// one reflects whether the pipeline currently includes it in the stage).
type stageEntry struct {
	cfg     guardrail.Config
	g       guardrail.Guardrail
	enabled bool
}

// Pipeline evaluates prompts (input stage) and responses (output stage)
// against their configured guardrail lists. A Pipeline is safe for
// concurrent use; a single RWMutex protects stage membership and
// enable/disable state, never guardrail evaluation itself.
type Pipeline struct {
	mu     sync.RWMutex
	input  []*stageEntry
	output []*stageEntry
	logger *zap.Logger

	Audit  AuditSink
	Health HealthRecorder
	Tracer Tracer
}

// New builds a Pipeline from cfg using registry to construct each entry.
// Entries whose factory construction fails are skipped with a logged
// error; the pipeline continues with the rest (spec §4.5 construction
// rule). A pipeline with zero entries in both stages is valid.
func New(registry *guardrail.Registry, cfg Config) *Pipeline {
	logger := logging.Get()
	return &Pipeline{
		input:  buildStage(registry, cfg.Pipeline.Input, logger),
		output: buildStage(registry, cfg.Pipeline.Output, logger),
		logger: logger,
		Tracer: noopTracer{},
	}
}

// NewDefault builds a Pipeline with the built-in guardrail registry and
// an empty config (spec §6.1's create_pipeline()).
func NewDefault() *Pipeline {
	return New(guardrail.DefaultRegistry(), Config{Version: "1.0"})
}

func buildStage(registry *guardrail.Registry, cfgs []guardrail.Config, logger *zap.Logger) []*stageEntry {
	entries := make([]*stageEntry, 0, len(cfgs))
	for _, c := range cfgs {
		g, err := registry.CreateFromConfig(c)
		if err != nil {
			logger.Error("skipping guardrail that failed to construct",
				zap.String("name", c.Name), zap.String("type", c.Type), zap.Error(err))
			continue
		}
		entries = append(entries, &stageEntry{cfg: c, g: g, enabled: c.Enabled})
	}
	return entries
}

func (p *Pipeline) stageFor(stage Stage) *[]*stageEntry {
	switch stage {
	case StageInput:
		return &p.input
	case StageOutput:
		return &p.output
	default:
		return nil
	}
}

// CheckOptions carries the optional per-call context (spec §6.1:
// `check_input(text, conversation?, api_key?)`).
type CheckOptions struct {
	Conversation *conversation.Conversation
	APIKey       string
	RequestID    string
}

// outcome is the payload carried on the channel CheckInputAsync /
// CheckOutputAsync return; ctx cancellation is the only way Err is set,
// since a guardrail error is always absorbed by on_error before it gets
// here.
type outcome struct {
	result Result
	err    error
}

// CheckInputAsync evaluates text against the input stage without
// blocking the caller's goroutine until the result is consumed.
func (p *Pipeline) CheckInputAsync(ctx context.Context, text string, opts CheckOptions) <-chan outcome {
	return p.checkAsync(ctx, StageInput, text, opts)
}

// CheckOutputAsync evaluates text against the output stage.
func (p *Pipeline) CheckOutputAsync(ctx context.Context, text string, opts CheckOptions) <-chan outcome {
	return p.checkAsync(ctx, StageOutput, text, opts)
}

// CheckInput is the synchronous wrapper: it runs CheckInputAsync to
// completion on the calling goroutine.
func (p *Pipeline) CheckInput(ctx context.Context, text string, opts CheckOptions) (Result, error) {
	out := <-p.CheckInputAsync(ctx, text, opts)
	return out.result, out.err
}

// CheckOutput is the synchronous wrapper for the output stage.
func (p *Pipeline) CheckOutput(ctx context.Context, text string, opts CheckOptions) (Result, error) {
	out := <-p.CheckOutputAsync(ctx, text, opts)
	return out.result, out.err
}

func (p *Pipeline) checkAsync(ctx context.Context, stage Stage, text string, opts CheckOptions) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		ch <- p.runStage(ctx, stage, text, opts)
	}()
	return ch
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, text string, opts CheckOptions) outcome {
	if err := ctx.Err(); err != nil {
		p.emitAuditError(ctx, err, opts)
		return outcome{err: err}
	}

	start := time.Now()

	tracer := p.Tracer
	if tracer == nil {
		tracer = noopTracer{}
	}
	spanCtx, endSpan := tracer.StartSpan(ctx, "pipeline."+string(stage))

	p.mu.RLock()
	entries := enabledEntries(*p.stageFor(stage))
	p.mu.RUnlock()

	var conv guardrail.ConversationReader
	if opts.Conversation != nil {
		conv = opts.Conversation
	}

	results := make([]guardrail.Result, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e *stageEntry) {
			defer wg.Done()
			results[i] = evalGuardrail(spanCtx, tracer, e, text, conv)
		}(i, e)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		endSpan(err)
		p.emitAuditError(ctx, err, opts)
		return outcome{err: err}
	}

	result := fuse(results)
	result.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	endSpan(nil)

	p.emitAuditDecisions(ctx, results, opts)
	if p.Health != nil {
		p.Health.RecordRequest(result.ProcessingTimeMs, result.Blocked)
	}
	p.attachToConversation(stage, text, result, opts)

	return outcome{result: result}
}

func enabledEntries(stage []*stageEntry) []*stageEntry {
	out := make([]*stageEntry, 0, len(stage))
	for _, e := range stage {
		if e.enabled && e.g.Enabled() {
			out = append(out, e)
		}
	}
	return out
}

func (p *Pipeline) attachToConversation(stage Stage, text string, result Result, opts CheckOptions) {
	if opts.Conversation == nil {
		return
	}
	meta := map[string]any{"guardrail_results": resultAsMap(result)}
	switch stage {
	case StageInput:
		opts.Conversation.AddPrompt(text, meta)
	case StageOutput:
		opts.Conversation.CompleteTurn(text, meta)
	}
}

func resultAsMap(r Result) map[string]any {
	return map[string]any{
		"blocked":            r.Blocked,
		"reasons":            r.Reasons,
		"warnings":           r.Warnings,
		"details":            r.Details,
		"processing_time_ms": r.ProcessingTimeMs,
	}
}

func (p *Pipeline) emitAuditDecisions(ctx context.Context, results []guardrail.Result, opts CheckOptions) {
	if p.Audit == nil {
		return
	}
	userID, convID := "", ""
	if opts.Conversation != nil {
		convID = opts.Conversation.ConversationID()
		userID = opts.Conversation.Initiator()
	}
	for _, r := range results {
		decision := "allow"
		switch {
		case r.Blocked:
			decision = "block"
		case r.Warned:
			decision = "warn"
		}
		if m, ok := r.Details["decision"]; ok && m == "error" {
			decision = "error"
		}
		p.Audit.LogGuardrailDecision(ctx, r.GuardrailName, decision, r.Reason, r.Confidence, userID, convID, opts.RequestID)
	}
}

// emitAuditError records a best-effort error event when a stage check is
// cancelled before it produces a result (spec §5: no llm_response event is
// emitted on cancellation, but an error event still is).
func (p *Pipeline) emitAuditError(ctx context.Context, err error, opts CheckOptions) {
	if p.Audit == nil {
		return
	}
	userID, convID := "", ""
	if opts.Conversation != nil {
		convID = opts.Conversation.ConversationID()
		userID = opts.Conversation.Initiator()
	}
	auditCtx := map[string]any{"request_id": opts.RequestID}
	if userID != "" {
		auditCtx["user_id"] = userID
	}
	if convID != "" {
		auditCtx["conversation_id"] = convID
	}
	p.Audit.LogError(ctx, err.Error(), auditCtx)
}

// --- enable/disable + status/config -----------------------------------------

// EnableGuardrail turns on name in the given stage(s), independently per
// stage even when the same name appears in both. Reports whether any
// matching entry was found.
func (p *Pipeline) EnableGuardrail(name string, stage Stage) bool {
	return p.setEnabled(name, stage, true)
}

// DisableGuardrail turns off name in the given stage(s).
func (p *Pipeline) DisableGuardrail(name string, stage Stage) bool {
	return p.setEnabled(name, stage, false)
}

func (p *Pipeline) setEnabled(name string, stage Stage, enabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	found := false
	if stage == StageInput || stage == StageBoth {
		found = setEnabledIn(p.input, name, enabled) || found
	}
	if stage == StageOutput || stage == StageBoth {
		found = setEnabledIn(p.output, name, enabled) || found
	}
	return found
}

func setEnabledIn(stage []*stageEntry, name string, enabled bool) bool {
	found := false
	for _, e := range stage {
		if e.g.Name() == name {
			e.enabled = enabled
			found = true
		}
	}
	return found
}

// StageStatus summarizes one stage's guardrail list.
type StageStatus struct {
	Guardrails map[string]map[string]any `json:"guardrails"`
	Total      int                       `json:"total"`
	Enabled    int                       `json:"enabled"`
}

// Status is the shape returned by GetGuardrailStatus (spec §4.5).
type Status struct {
	InputGuardrails  StageStatus `json:"input_guardrails"`
	OutputGuardrails StageStatus `json:"output_guardrails"`
	TotalEnabled     int         `json:"total_enabled"`
	Total            int         `json:"total"`
}

func statusFor(stage []*stageEntry) StageStatus {
	st := StageStatus{Guardrails: map[string]map[string]any{}}
	for _, e := range stage {
		st.Total++
		snap := e.g.HealthSnapshot()
		snap["stage_enabled"] = e.enabled
		st.Guardrails[e.g.Name()] = snap
		if e.enabled && e.g.Enabled() {
			st.Enabled++
		}
	}
	return st
}

// GetGuardrailStatus returns the per-stage health/enablement snapshot.
func (p *Pipeline) GetGuardrailStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	in := statusFor(p.input)
	out := statusFor(p.output)
	return Status{
		InputGuardrails:  in,
		OutputGuardrails: out,
		TotalEnabled:     in.Enabled + out.Enabled,
		Total:            in.Total + out.Total,
	}
}

// HealthCounts reports total and enabled guardrail counts across both
// stages, satisfying health.PipelineStatusProvider without pipeline
// importing package health.
func (p *Pipeline) HealthCounts() (total int, enabled int) {
	status := p.GetGuardrailStatus()
	return status.Total, status.TotalEnabled
}

// GetGuardrailConfigs returns the configs currently backing each stage,
// reflecting live enabled state (not the original file's enabled value).
func (p *Pipeline) GetGuardrailConfigs() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var cfg Config
	cfg.Version = "1.0"
	for _, e := range p.input {
		c := e.cfg
		c.Enabled = e.enabled
		cfg.Pipeline.Input = append(cfg.Pipeline.Input, c)
	}
	for _, e := range p.output {
		c := e.cfg
		c.Enabled = e.enabled
		cfg.Pipeline.Output = append(cfg.Pipeline.Output, c)
	}
	return cfg
}

// UpdateGuardrailConfig pushes a partial config update to a live
// guardrail via the optional guardrail.ConfigUpdater capability. Reports
// false if the guardrail isn't found or doesn't support live updates.
func (p *Pipeline) UpdateGuardrailConfig(name string, stage Stage, partial map[string]any) (bool, error) {
	p.mu.RLock()
	var target guardrail.Guardrail
	search := func(entries []*stageEntry) {
		for _, e := range entries {
			if e.g.Name() == name {
				target = e.g
			}
		}
	}
	if stage == StageInput || stage == StageBoth {
		search(p.input)
	}
	if stage == StageOutput || stage == StageBoth {
		search(p.output)
	}
	p.mu.RUnlock()

	if target == nil {
		return false, nil
	}
	updater, ok := target.(guardrail.ConfigUpdater)
	if !ok {
		return false, nil
	}
	return updater.UpdateConfig(partial)
}
