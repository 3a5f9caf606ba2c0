package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestStartSpanEndsWithoutError(t *testing.T) {
	tr := NewTracer(nil)
	ctx, end := tr.StartSpan(context.Background(), "guardrail.pii")
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	end(nil)
}

func TestStartSpanRecordsError(t *testing.T) {
	tr := NewTracer(nil)
	_, end := tr.StartSpan(context.Background(), "guardrail.pii")
	end(errors.New("boom"))
}

func TestStartHTTPSpanRecordsStatus(t *testing.T) {
	tr := NewTracer(nil)
	_, end := tr.StartHTTPSpan(context.Background(), "POST", "/v1/check")
	end(200)

	_, end2 := tr.StartHTTPSpan(context.Background(), "POST", "/v1/check")
	end2(500)
}
