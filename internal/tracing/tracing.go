// Package tracing wraps OpenTelemetry span creation for this core.
//
// Grounded on the teacher's internal/observability.Tracer (tracing.go): an
// OTLP/gRPC exporter behind a TraceConfig, a no-op fallback when no
// endpoint is configured or the exporter fails to dial, and a set of
// Trace<Domain> convenience constructors. This package keeps that shape —
// config, no-op fallback, convenience constructors — and swaps the
// teacher's channel/LLM-provider/HTTP-gateway span names for this core's
// own operations: skill invocation (§4.1), agent delegation (§4.2),
// heartbeat job execution (§4.3), and cognition pipeline steps (§4.5).
package tracing

import (
	"context"
	"fmt"

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

// Config configures distributed tracing. An empty Endpoint yields a no-op
// tracer — tracing is opt-in, never a hard startup dependency.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP/gRPC collector address, e.g. "localhost:4317"
	SamplingRate   float64
	Insecure       bool
}

// Tracer creates spans for this core's operations. The zero value's
// tracer field is nil until New populates it; callers always go through
// New.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer from cfg and returns a shutdown func that must be
// called on exit (safe to call even for a no-op tracer).
func New(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(serviceNameOrDefault(cfg.ServiceName))}, noopShutdown
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}
	cfg.ServiceName = serviceNameOrDefault(cfg.ServiceName)

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noopShutdown
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
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

	t := &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}
	return t, provider.Shutdown
}

func serviceNameOrDefault(name string) string {
	if name == "" {
		return "aria-core"
	}
	return name
}

func noopShutdown(context.Context) error { return nil }

// Start opens a span named name and returns the span-bearing context.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// RecordError marks span as failed with err, a no-op when err is nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceInvocation opens a span for one registry.Invoke call (§4.1).
func (t *Tracer) TraceInvocation(ctx context.Context, skill, tool string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("skill.%s.%s", skill, tool), trace.SpanKindInternal,
		attribute.String("skill", skill), attribute.String("tool", tool))
}

// TraceDelegate opens a span for one coordinator.Delegate call (§4.2).
func (t *Tracer) TraceDelegate(ctx context.Context, agentID, taskID string) (context.Context, trace.Span) {
	return t.Start(ctx, "coordinator.delegate", trace.SpanKindInternal,
		attribute.String("agent_id", agentID), attribute.String("task_id", taskID))
}

// TraceJobRun opens a span for one heartbeat scheduler job run (§4.3).
func (t *Tracer) TraceJobRun(ctx context.Context, jobID string) (context.Context, trace.Span) {
	return t.Start(ctx, "scheduler.run_job", trace.SpanKindInternal, attribute.String("job_id", jobID))
}

// TracePipelineStep opens a span for one cognition pipeline step (§4.5).
func (t *Tracer) TracePipelineStep(ctx context.Context, step, sessionID string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("cognition.%s", step), trace.SpanKindInternal,
		attribute.String("session_id", sessionID))
}

// TraceRouterCall opens a span for one outbound model router request
// (§4.6).
func (t *Tracer) TraceRouterCall(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("router.%s", model), trace.SpanKindClient,
		attribute.String("model", model))
}

// TraceQuery opens a span for one store query (§4.7).
func (t *Tracer) TraceQuery(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("db.%s", operation), trace.SpanKindClient,
		attribute.String("db.operation", operation), attribute.String("db.table", table))
}
