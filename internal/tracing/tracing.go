// Package tracing wires OpenTelemetry span export for the relay.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sadeshmukh/discord-ai/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Provider owns the tracer provider and its exporter.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// Tracer returns a named tracer. It is a no-op when export is disabled.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return p.shutdown(ctx)
}

// Setup builds a Provider from the telemetry config and installs it as the
// global tracer provider. Disabled telemetry yields a no-op provider.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tp: noop.NewTracerProvider()}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry enabled without an endpoint")
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "discord-ai"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	slog.Info("telemetry export enabled", "endpoint", cfg.Endpoint, "protocol", protocol(cfg), "service", serviceName)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

func protocol(cfg config.TelemetryConfig) string {
	if strings.EqualFold(cfg.Protocol, "http") {
		return "http"
	}
	return "grpc"
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch protocol(cfg) {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint))}
		if cfg.Insecure || strings.HasPrefix(cfg.Endpoint, "http://") {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp http exporter: %w", err)
		}
		return exp, nil
	default:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(stripScheme(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp grpc exporter: %w", err)
		}
		return exp, nil
	}
}

// stripScheme turns "https://host:4318" into "host:4318"; the exporters
// take a bare host:port.
func stripScheme(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+3:]
	}
	return endpoint
}
