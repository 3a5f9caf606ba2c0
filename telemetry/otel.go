// Package telemetry bridges pipeline evaluation calls to OpenTelemetry
// tracing, the way the teacher's observe/otel package bridges its event
// bus to spans: a thin Tracer wrapping a trace.Tracer, with no dependency
// in the other direction (package pipeline only knows telemetry through
// its own locally-declared Tracer interface).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/stinger-run/stinger/pipeline"

// Tracer implements pipeline.Tracer by emitting OpenTelemetry spans for
// each stage evaluation and each individual guardrail's Analyze call.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps tp's tracer (or a noop tracer if tp is nil) for use as
// a pipeline.Tracer.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// StartSpan starts a span named name and returns a func that ends it,
// recording err (if non-nil) as the span's status.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	spanCtx, span := t.tracer.Start(ctx, name)
	return spanCtx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// InitTracerProvider builds an SDK TracerProvider exporting to exporter
// (callers typically pass an OTLP or stdout span exporter), tagged with
// serviceName. Returns a shutdown func to flush and close it on exit.
func InitTracerProvider(serviceName string, exporter sdktrace.SpanExporter) (trace.TracerProvider, func(context.Context) error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		res = resource.Default()
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}

// StartHTTPSpan is a convenience for the API layer: it starts a span for
// one inbound request, named by method and route.
func (t *Tracer) StartHTTPSpan(ctx context.Context, method, route string) (context.Context, func(statusCode int)) {
	spanCtx, span := t.tracer.Start(ctx, fmt.Sprintf("%s %s", method, route),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("http.route", route)))
	return spanCtx, func(statusCode int) {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
		if statusCode >= 500 {
			span.SetStatus(codes.Error, "server error")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
