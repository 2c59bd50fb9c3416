// Package trace owns the process tracer and the span vocabulary of the analyzer.
package trace

import (
	"context"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "news-forecaster"

// Span names shared by the pipeline stages.
const (
	SpanPass      = "analyzer.Pass"
	SpanArticle   = "analyzer.Article"
	SpanAggregate = "analyzer.Aggregate"
	SpanLLM       = "llm.Complete"
)

// Options configure the exporter. Writer defaults to stdout.
type Options struct {
	Enabled bool
	Version string
	Writer  io.Writer
}

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
)

// Init reads LOG_TRACING_ENABLED and installs the stdout exporter when it is true.
func Init(version string) error {
	on, _ := strconv.ParseBool(os.Getenv("LOG_TRACING_ENABLED"))
	return Setup(Options{Enabled: on, Version: version})
}

func Setup(opts Options) error {
	enabled = false
	if !opts.Enabled {
		return nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(opts.Version),
	))
	if err != nil {
		// schema clash with the SDK default resource; fall back to ours alone
		res = resource.NewSchemaless(semconv.ServiceName(serviceName), semconv.ServiceVersion(opts.Version))
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(serviceName)
	enabled = true
	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider, tracer, enabled = nil, nil, false
	return err
}

func Enabled() bool {
	return enabled
}

// StartSpan opens name under ctx. With tracing off it returns the span already in ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func StartPass(ctx context.Context) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanPass)
}

func StartArticle(ctx context.Context, model string, articleID uint, priority int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanArticle,
		attribute.String("model", model),
		attribute.Int64("article_id", int64(articleID)),
		attribute.Int("priority", priority),
	)
}

func StartAggregate(ctx context.Context, model, ticker string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanAggregate,
		attribute.String("model", model),
		attribute.String("ticker", ticker),
	)
}

func StartLLM(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanLLM,
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
}

// GetTraceFields returns the ids of the active span for log correlation.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
