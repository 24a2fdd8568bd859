// Package tracing provides OpenTelemetry distributed tracing scoped to the
// orchestration core: one span per agent turn, with a child span per tool
// call (SPEC_FULL §B domain stack).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer. An empty Endpoint yields a no-op tracer:
// spans are created but never exported, so call sites never need to branch
// on whether tracing is enabled.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	SamplingRate   float64
	Insecure       bool
}

// Tracer wraps an otel trace.Tracer with the two span shapes this daemon
// needs: an agent turn and the tool calls nested under it.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer and returns a shutdown func that flushes and
// closes the exporter; always call it on daemon exit.
func NewTracer(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(serviceNameOrDefault(cfg))}, noopShutdown
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(serviceNameOrDefault(cfg))}, noopShutdown
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceNameOrDefault(cfg)),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(serviceNameOrDefault(cfg))}, provider.Shutdown
}

func serviceNameOrDefault(cfg Config) string {
	if cfg.ServiceName == "" {
		return "paseod"
	}
	return cfg.ServiceName
}

func noopShutdown(context.Context) error { return nil }

// StartTurn opens the root span for one agent turn: everything from a
// client message being accepted through the provider's reply landing in the
// timeline.
func (t *Tracer) StartTurn(ctx context.Context, agentID, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "agent.turn", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("agent.provider", provider),
		))
}

// StartToolCall opens a child span for one tool call nested under the
// enclosing turn span in ctx.
func (t *Tracer) StartToolCall(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "agent.tool_call", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", callID),
		))
}

// RecordError records err on span and marks the span's status accordingly;
// a nil err leaves the span untouched.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
