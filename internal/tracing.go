package internal

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs a global tracer provider writing spans to out and
// returns its shutdown. With tracing "none" the global no-op provider is left
// in place.
func setupTracing(cfg ApplicationConfig, version string, out io.Writer) (func(context.Context) error, error) {
	if cfg.Tracing != TracingStdout {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("tracing: stdout exporter: %w", err)
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", "tutorcore"),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
