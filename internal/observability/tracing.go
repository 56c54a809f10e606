// Package observability provides OpenTelemetry trace export for campusqa.
//
// Traces are exported over OTLP HTTP to a local collector (an OpenTelemetry
// Collector or any agent that speaks OTLP). The exporter is optional: when no
// endpoint is configured, Setup returns a no-op shutdown and the process runs
// untraced.
//
// Configuration (config.yaml or environment):
//
//	otlp_endpoint: "localhost:4318"
//	environment: "dev"
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceName is the service name attached to every exported span.
const ServiceName = "campusqa"

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint, host:port without scheme.
	// Empty disables tracing.
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// Setup installs a global TracerProvider exporting to cfg.Endpoint.
// Returns a shutdown function that flushes pending spans.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(ServiceName)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.DeploymentEnvironment(cfg.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	slog.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", ServiceName,
		"environment", cfg.Environment,
	)

	return tp.Shutdown, nil
}
