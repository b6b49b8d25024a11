// Package tracing installs the OpenTelemetry tracer provider used by the
// executor's spans. Spans are exported over OTLP/HTTP; the endpoint and
// headers come from the standard OTEL_EXPORTER_OTLP_* environment variables.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const DefaultServiceName = "snipexec"

type Config struct {
	Enabled     bool
	ServiceName string
	// SampleRatio is the fraction of root spans kept, between 0 and 1.
	SampleRatio float64
}

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init builds a tracer provider for conf and makes it the global one. When
// tracing is disabled nothing is installed and the returned Shutdown does
// nothing.
func Init(ctx context.Context, conf Config) (Shutdown, error) {
	if !conf.Enabled {
		return noopShutdown, nil
	}
	if conf.ServiceName == "" {
		conf.ServiceName = DefaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(conf.ServiceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(conf.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
