package pipeline

import (
	"context"
	"testing"

	"github.com/stinger-run/stinger/conversation"
	"github.com/stinger-run/stinger/guardrail"
)

func piiPipeline(t *testing.T) *Pipeline {
	t.Helper()
	var cfg Config
	cfg.Version = "1.0"
	cfg.Pipeline.Input = []guardrail.Config{
		{Name: "pii", Type: guardrail.TypePII, Enabled: true, OnError: guardrail.OnErrorBlock},
	}
	return New(guardrail.DefaultRegistry(), cfg)
}

func TestCheckInputBlocksOnPII(t *testing.T) {
	p := piiPipeline(t)
	res, err := p.CheckInput(context.Background(), "My SSN is 123-45-6789", CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Blocked {
		t.Fatal("expected blocked")
	}
	if len(res.Reasons) == 0 {
		t.Fatal("expected at least one reason")
	}
	if len(res.Details) != 1 {
		t.Fatalf("expected details for exactly 1 enabled guardrail, got %d", len(res.Details))
	}
}

func TestCheckInputAllowsCleanText(t *testing.T) {
	p := piiPipeline(t)
	res, err := p.CheckInput(context.Background(), "What are your hours?", CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Blocked {
		t.Fatal("expected not blocked")
	}
	if len(res.Warnings) != 0 || len(res.Reasons) != 0 {
		t.Fatal("expected no warnings or reasons")
	}
}

func TestZeroGuardrailsAlwaysAllows(t *testing.T) {
	p := New(guardrail.DefaultRegistry(), Config{Version: "1.0"})
	res, err := p.CheckInput(context.Background(), "anything at all", CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Blocked || len(res.Details) != 0 {
		t.Fatalf("expected blocked=false, details={}, got %+v", res)
	}
}

func TestDetailsCountMatchesEnabledGuardrails(t *testing.T) {
	var cfg Config
	cfg.Pipeline.Input = []guardrail.Config{
		{Name: "len", Type: guardrail.TypeLength, Enabled: true, OnError: guardrail.OnErrorBlock},
		{Name: "pii", Type: guardrail.TypePII, Enabled: true, OnError: guardrail.OnErrorBlock},
		{Name: "secret", Type: guardrail.TypeSecret, Enabled: false, OnError: guardrail.OnErrorBlock},
	}
	p := New(guardrail.DefaultRegistry(), cfg)
	res, err := p.CheckInput(context.Background(), "hello", CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Details) != 2 {
		t.Fatalf("expected 2 enabled guardrails reflected in details, got %d", len(res.Details))
	}
}

func TestOnErrorAllowIsSilentButDetailsFlagsError(t *testing.T) {
	reg := guardrail.NewRegistry()
	reg.Register("always_error", func(name string, onError guardrail.OnError, _ map[string]any) (guardrail.Guardrail, error) {
		return &erroringGuardrail{name: name, onError: onError}, nil
	})
	var cfg Config
	cfg.Pipeline.Input = []guardrail.Config{{Name: "boom", Type: "always_error", Enabled: true, OnError: guardrail.OnErrorAllow}}
	p := New(reg, cfg)

	res, err := p.CheckInput(context.Background(), "x", CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Blocked || len(res.Warnings) != 0 || len(res.Reasons) != 0 {
		t.Fatalf("expected a silent allow, got %+v", res)
	}
	if res.Details["boom"]["decision"] != "error" {
		t.Fatalf("expected details to flag decision=error, got %+v", res.Details["boom"])
	}
}

func TestOnErrorBlockBlocksPipeline(t *testing.T) {
	reg := guardrail.NewRegistry()
	reg.Register("always_error", func(name string, onError guardrail.OnError, _ map[string]any) (guardrail.Guardrail, error) {
		return &erroringGuardrail{name: name, onError: onError}, nil
	})
	var cfg Config
	cfg.Pipeline.Input = []guardrail.Config{{Name: "boom", Type: "always_error", Enabled: true, OnError: guardrail.OnErrorBlock}}
	p := New(reg, cfg)

	res, err := p.CheckInput(context.Background(), "x", CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Blocked {
		t.Fatal("expected blocked when on_error=block")
	}
}

func TestEnableDisableIsPerStage(t *testing.T) {
	var cfg Config
	cfg.Pipeline.Input = []guardrail.Config{{Name: "shared", Type: guardrail.TypeLength, Enabled: true, OnError: guardrail.OnErrorBlock}}
	cfg.Pipeline.Output = []guardrail.Config{{Name: "shared", Type: guardrail.TypeLength, Enabled: true, OnError: guardrail.OnErrorBlock}}
	p := New(guardrail.DefaultRegistry(), cfg)

	if !p.DisableGuardrail("shared", StageInput) {
		t.Fatal("expected to find 'shared' in input stage")
	}
	status := p.GetGuardrailStatus()
	if status.InputGuardrails.Enabled != 0 {
		t.Fatalf("expected input stage disabled, got %d enabled", status.InputGuardrails.Enabled)
	}
	if status.OutputGuardrails.Enabled != 1 {
		t.Fatalf("expected output stage still enabled, got %d enabled", status.OutputGuardrails.Enabled)
	}
}

func TestCheckInputAttachesToConversation(t *testing.T) {
	p := piiPipeline(t)
	conv := conversation.HumanAI("u1", "model")
	_, err := p.CheckInput(context.Background(), "hello there", CheckOptions{Conversation: conv})
	if err != nil {
		t.Fatal(err)
	}
	history := conv.GetHistory(0)
	if len(history) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(history))
	}
	if _, ok := history[0].Metadata["guardrail_results"]; !ok {
		t.Fatal("expected guardrail_results attached to turn metadata")
	}
}

func TestCheckOutputCompletesIncompleteTurn(t *testing.T) {
	p := piiPipeline(t)
	conv := conversation.HumanAI("u1", "model")
	conv.AddPrompt("hello there", nil)
	_, err := p.CheckOutput(context.Background(), "hi, how can I help?", CheckOptions{Conversation: conv})
	if err != nil {
		t.Fatal(err)
	}
	history := conv.GetHistory(0)
	if len(history) != 1 {
		t.Fatalf("expected the prompt turn to be completed in place, got %d turns", len(history))
	}
	if !history[0].Complete() {
		t.Fatal("expected the turn to be complete")
	}
}

func TestUpdateGuardrailConfigReportsUnsupported(t *testing.T) {
	p := piiPipeline(t)
	ok, err := p.UpdateGuardrailConfig("pii", StageInput, map[string]any{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("pii guardrail does not implement ConfigUpdater, expected false")
	}
}

// erroringGuardrail always returns an error from Analyze, to exercise
// on_error handling paths without depending on the real detectors.
type erroringGuardrail struct {
	name    string
	onError guardrail.OnError
}

func (g *erroringGuardrail) Name() string              { return g.name }
func (g *erroringGuardrail) Type() string              { return "always_error" }
func (g *erroringGuardrail) Enabled() bool             { return true }
func (g *erroringGuardrail) OnError() guardrail.OnError { return g.onError }
func (g *erroringGuardrail) IsAvailable() bool         { return true }
func (g *erroringGuardrail) HealthSnapshot() map[string]any {
	return map[string]any{"name": g.name, "type": "always_error", "enabled": true, "available": true}
}
func (g *erroringGuardrail) Analyze(_ context.Context, _ string, _ guardrail.ConversationReader) (guardrail.Result, error) {
	return guardrail.Result{}, errBoom
}

var errBoom = &guardrail.Error{Kind: guardrail.ErrConfiguration, Name: "boom", Message: "always fails"}

// fakeAuditSink records which AuditSink methods were called, to verify
// the pipeline emits the right event type without needing a real Trail.
type fakeAuditSink struct {
	decisions []string
	errors    []string
}

func (f *fakeAuditSink) LogPrompt(context.Context, string, string, string, string) {}
func (f *fakeAuditSink) LogResponse(context.Context, string, string, string, string, string, float64) {
}
func (f *fakeAuditSink) LogGuardrailDecision(_ context.Context, guardrailName, decision, _ string, _ float64, _, _, _ string) {
	f.decisions = append(f.decisions, guardrailName+":"+decision)
}
func (f *fakeAuditSink) LogError(_ context.Context, message string, _ map[string]any) {
	f.errors = append(f.errors, message)
}

func TestCancelledContextEmitsAuditErrorNotGuardrailDecision(t *testing.T) {
	p := piiPipeline(t)
	sink := &fakeAuditSink{}
	p.Audit = sink

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CheckInput(ctx, "hello", CheckOptions{RequestID: "req-1"})
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
	if len(sink.decisions) != 0 {
		t.Fatalf("expected no guardrail_decision events on cancellation, got %v", sink.decisions)
	}
	if len(sink.errors) != 1 {
		t.Fatalf("expected exactly 1 error event, got %v", sink.errors)
	}
}
