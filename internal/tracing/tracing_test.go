package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, "stdout", cfg.Exporter)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "event-reg", cfg.ServiceName)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no context")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_EnabledWithoutExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_Stdout(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "stdout", SampleRate: 0.5})
	require.NoError(t, err)
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
}
