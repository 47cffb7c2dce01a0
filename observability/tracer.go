// Package observability provides the tracing and metrics plumbing shared
// by the delegation engine and the HTTP server.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roundtable-ai/roundtable/config"
)

// Span names.
const (
	SpanTask       = "supervisor.task"
	SpanSelection  = "supervisor.selection"
	SpanDelegation = "supervisor.delegation"
)

// Attribute keys.
const (
	AttrAgentName       = "roundtable.agent.name"
	AttrSessionID       = "roundtable.session.id"
	AttrTaskID          = "roundtable.task.id"
	AttrSelectionSource = "roundtable.selection.source"
	AttrFallback        = "roundtable.delegation.fallback"
	AttrErrorCode       = "roundtable.error.code"
)

// Tracer wraps the OpenTelemetry tracer. A nil *Tracer is valid and all
// methods are no-ops on it.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer from configuration. Returns nil (valid,
// no-op) when tracing is disabled.
func NewTracer(cfg *config.TracingConfig) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

// Start begins a span. Safe on a nil Tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartTask begins the span covering one inbound task.
func (t *Tracer) StartTask(ctx context.Context, taskID, sessionID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanTask, trace.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrSessionID, sessionID),
	))
}

// StartDelegation begins the span covering one forwarding attempt.
func (t *Tracer) StartDelegation(ctx context.Context, agent string, fallback bool) (context.Context, trace.Span) {
	return t.Start(ctx, SpanDelegation, trace.WithAttributes(
		attribute.String(AttrAgentName, agent),
		attribute.Bool(AttrFallback, fallback),
	))
}

// RecordError records an error on a span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

// Shutdown flushes and stops the tracer. Safe on a nil Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func noopSpan() trace.Span {
	_, span := noop.NewTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
