// Package telemetry configures OpenTelemetry tracing for the client.
//
// Spans come from two places: orchestrator submissions (one span per Submit,
// tagged with the surface, sequence number and token estimates) and the
// otelhttp transport of the backend client. The devserver command installs
// its own provider for the development backend's handlers.
package telemetry

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TracerName is the instrumentation scope of orchestrator spans.
const TracerName = "github.com/tjfontaine/applyai-client"

// InitTracer installs a global tracer provider for serviceName that writes
// spans as indented JSON to w. The CLI passes stderr so spans never mix with
// command output. The returned function flushes pending spans and must be
// called before exit.
func InitTracer(serviceName string, w io.Writer, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	// Spans are exported in batches, off the submit path
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled", slog.String("service", serviceName))

	return tp.Shutdown, nil
}
