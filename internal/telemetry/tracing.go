// Package telemetry provides OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Option configures the tracer provider.
type Option = sdktrace.TracerProviderOption

// InitTracerProvider installs a global trace provider tagged with serviceName and
// version. Exporters come from opts, e.g. sdktrace.WithBatcher; without one spans
// are sampled but dropped.
func InitTracerProvider(ctx context.Context, serviceName, version string, opts ...Option) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource for %s: %w", serviceName, err)
	}

	providerOpts := make([]Option, 0, len(opts)+1)
	providerOpts = append(providerOpts, sdktrace.WithResource(res))
	tp := sdktrace.NewTracerProvider(append(providerOpts, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}
