package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps the gateway's two request spans: one per public-surface
// request, and child spans per upstream call.
type Tracer struct {
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
}

// NewTracer builds a TracerProvider with the given sample ratio (0..1) and
// installs it as the global provider.
func NewTracer(serviceName string, sampleRatio float64) *Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRatio)),
	)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: tp.Tracer(serviceName), tp: tp}
}

// StartRequest opens the top-level span for a /v1/parse or
// /v1/chat/completions request. Safe on a nil Tracer: returns ctx unchanged
// with the ambient (no-op) span.
func (t *Tracer) StartRequest(ctx context.Context, name, mode string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("gateway.mode", mode),
	))
}

// StartUpstreamCall opens a child span for a single upstream provider call.
// Safe on a nil Tracer.
func (t *Tracer) StartUpstreamCall(ctx context.Context, provider, tier string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "upstream.call", trace.WithAttributes(
		attribute.String("gateway.provider", provider),
		attribute.String("gateway.tier", tier),
	))
}

// Shutdown flushes and stops the tracer provider. Safe on a nil Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}
