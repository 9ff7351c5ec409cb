package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nutshimit/mashin-registry/internal/config"
)

// TracerName is the instrumentation scope used for registry spans.
const TracerName = "github.com/nutshimit/mashin-registry"

// TracerProvider wraps the OpenTelemetry provider so callers can shut it down
// without caring whether tracing is enabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerProvider installs the global tracer provider. When tracing is
// disabled a no-op tracer is returned and nothing is exported.
func NewTracerProvider(ctx context.Context, cfg config.TelemetryConfig) (*TracerProvider, error) {
	if !cfg.Tracing.Enabled {
		return &TracerProvider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mashin-registry"
	}
	rate := cfg.Tracing.SampleRate
	if rate <= 0 {
		rate = 1.0
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

// Tracer returns the registry tracer.
func (p *TracerProvider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are exported.
func (p *TracerProvider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes pending spans.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Tracer returns the tracer from the global provider. Components that are not
// handed a tracer explicitly use this.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
