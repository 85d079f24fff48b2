// Package otelexport ships turn spans to an OTLP backend (Jaeger, Tempo,
// Datadog). It implements tracing.SpanExporter so the OTel SDK dependency
// stays out of the core tracing package.
package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "skillbase")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts store.SpanData into OTel spans and exports via OTLP.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "skillbase"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("skillbase"),
	}, nil
}

// ExportSpans is called by the Collector during flush alongside the
// database batch insert. Errors are logged, never propagated.
func (e *Exporter) ExportSpans(ctx context.Context, spans []store.SpanData) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s store.SpanData) {
	attrs := []attribute.KeyValue{
		attribute.String("skillbase.span_type", s.SpanType),
		// The SDK generates its own span IDs; keep ours as attributes so
		// OTLP spans can be correlated with the database rows.
		attribute.String("skillbase.trace_id", s.TraceID.String()),
		attribute.String("skillbase.span_id", s.ID.String()),
	}
	if s.Preview != "" {
		attrs = append(attrs, attribute.String("skillbase.preview", s.Preview))
	}

	kind := trace.SpanKindInternal
	if s.SpanType == "llm" {
		kind = trace.SpanKindClient
	}

	_, span := e.tracer.Start(ctx, s.Name,
		trace.WithTimestamp(s.StartTime),
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)

	if s.Status == "error" {
		span.SetStatus(codes.Error, s.Preview)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(s.EndTime))
}

// Shutdown flushes remaining spans and shuts down the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}
