package pipeline

import (
	"context"
	"fmt"

	"github.com/stinger-run/stinger/guardrail"
)

// evalGuardrail runs one guardrail's Analyze, converting a returned error
// or a recovered panic into the on_error-governed result spec §4.5 step 5
// describes. A guardrail must never abort the whole stage evaluation.
func evalGuardrail(ctx context.Context, tracer Tracer, e *stageEntry, text string, conv guardrail.ConversationReader) (res guardrail.Result) {
	spanCtx, endSpan := tracer.StartSpan(ctx, "guardrail."+e.g.Name())
	var spanErr error
	defer func() {
		if r := recover(); r != nil {
			spanErr = fmt.Errorf("panic: %v", r)
			res = onErrorResult(e, spanErr)
		}
		endSpan(spanErr)
	}()
	out, err := e.g.Analyze(spanCtx, text, conv)
	if err != nil {
		spanErr = err
		res = onErrorResult(e, err)
		return
	}
	out.GuardrailName = e.g.Name()
	out.GuardrailType = e.g.Type()
	return out
}

// onErrorResult applies on_error to an evaluation failure. on_error=allow
// is a silent allow (no reason, no warning) but the details entry still
// carries decision=error so callers can distinguish a clean allow from a
// swallowed failure (this is the documented resolution of the spec's
// on_error=allow open question).
func onErrorResult(e *stageEntry, err error) guardrail.Result {
	res := guardrail.Result{
		GuardrailName: e.g.Name(),
		GuardrailType: e.g.Type(),
		Confidence:    0,
		Details:       map[string]any{"decision": "error"},
	}
	switch e.g.OnError() {
	case guardrail.OnErrorBlock:
		res.Blocked = true
		res.Reason = "filter error: " + err.Error()
	case guardrail.OnErrorWarn:
		res.Warned = true
		res.Reason = "filter error: " + err.Error()
	case guardrail.OnErrorAllow:
		// silent allow; reason intentionally left blank.
	}
	return res
}

// fuse implements the decision-fusion rule of spec §4.5 step 6: blocked is
// an OR over every result, reasons/warnings are collected in declaration
// order (the slice order callers already run results in), and every
// result lands in details keyed by guardrail name.
func fuse(results []guardrail.Result) Result {
	res := newResult()
	for _, r := range results {
		res.Details[r.GuardrailName] = r.AsMap()
		if r.Blocked {
			res.Blocked = true
			res.Reasons = append(res.Reasons, r.Reason)
		}
		if r.Warned {
			res.Warnings = append(res.Warnings, r.Reason)
		}
	}
	return res
}
