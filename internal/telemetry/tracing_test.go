package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/lgn-platform/lgn-api/internal/config"
)

var testService = Service{Version: "test", Environment: "test"}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, testService)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_InvalidSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		_, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: rate}, testService)
		assert.Error(t, err, "rate %v", rate)
	}
}

func TestInitTracing_UnsupportedExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin", SampleRate: 1}, testService)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
}

func TestInitTracing_NoneExporter(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "none",
		SampleRate:  1,
		ServiceName: "lgn-api-test",
	}, testService)
	require.NoError(t, err)

	_, span := Tracer("telemetry").Start(context.Background(), "unit")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestNewExporter(t *testing.T) {
	exporter, err := newExporter(context.Background(), config.TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.Nil(t, exporter)

	exporter, err = newExporter(context.Background(), config.TracingConfig{Exporter: "stdout"})
	require.NoError(t, err)
	require.NotNil(t, exporter)
	assert.NoError(t, exporter.Shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), config.TracingConfig{}, Service{Version: "1.2.3", Environment: "staging"})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "lgn-api", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "staging", attrs["deployment.environment"])
}
