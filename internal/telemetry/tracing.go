// Package telemetry configures OpenTelemetry tracing for the server.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgn-platform/lgn-api/internal/config"
)

const defaultServiceName = "lgn-api"

// ShutdownFunc flushes pending spans and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Service identifies the running binary on every exported span.
type Service struct {
	Version     string
	Environment string
}

// InitTracing installs a global tracer provider and W3C propagators.
//
// Exporter is "stdout", "otlp" (gRPC, plaintext) or "none"; with "none"
// spans are still created so trace ids propagate, but nothing is exported.
// When tracing is disabled the global provider is left untouched.
func InitTracing(ctx context.Context, cfg config.TracingConfig, svc Service) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return nil, fmt.Errorf("invalid sample rate %g: must be between 0 and 1", cfg.SampleRate)
	}

	res, err := newResource(ctx, cfg, svc)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SampleRate))),
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newResource(ctx context.Context, cfg config.TracingConfig, svc Service) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	attrs := []resource.Option{
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(svc.Version),
		),
	}
	if svc.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(svc.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}
	return res, nil
}

// newExporter returns a nil exporter for "none".
func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "none", "":
		return nil, nil
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exporter, nil
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		// without an explicit endpoint the exporter reads OTEL_EXPORTER_OTLP_ENDPOINT
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported exporter %q (must be stdout, otlp or none)", cfg.Exporter)
	}
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the application tracer for the named component.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/lgn-platform/lgn-api/" + name)
}
