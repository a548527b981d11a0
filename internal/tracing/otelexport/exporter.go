// Package otelexport bridges the flow collector to OpenTelemetry OTLP.
// It converts stage events into OTel spans so flows show up in Jaeger,
// Grafana Tempo or any OTLP-capable backend.
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

	"github.com/nextlevelbuilder/aide/internal/tracing"
)

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "aide")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts stage events to OTel spans and exports via OTLP.
// It implements the tracing.EventExporter interface.
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
		serviceName = "aide"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
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
		tracer:   tp.Tracer("aide"),
	}, nil
}

// ExportEvents converts a batch of stage events into OTel spans.
// Errors are logged, never propagated: export must not affect the loop.
func (e *Exporter) ExportEvents(ctx context.Context, events []tracing.StageEvent) {
	for _, ev := range events {
		end := ev.CreatedAt
		start := end.Add(-time.Duration(ev.DurationMS) * time.Millisecond)

		_, span := e.tracer.Start(ctx, ev.Stage,
			trace.WithTimestamp(start),
			trace.WithAttributes(
				attribute.String("aide.flow_id", ev.FlowID.String()),
				attribute.String("aide.stage", ev.Stage),
				attribute.String("aide.status", ev.Status),
			),
		)
		for key, val := range ev.Data {
			span.SetAttributes(attribute.String("aide.data."+key, fmt.Sprintf("%v", val)))
		}
		if ev.Status == "error" || ev.Status == tracing.FlowFailed || ev.Status == tracing.FlowTimeout {
			span.SetStatus(codes.Error, ev.Status)
		}
		span.End(trace.WithTimestamp(end))
	}
	slog.Debug("otelexport: exported stage events", "count", len(events))
}

// Shutdown flushes buffered spans and stops the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
