package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/tutorrag/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled defaults", func(c *Config) { c.Enabled = true }, false},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, true},
		{"missing service", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, false},
		{"insecure loopback ip", func(c *Config) { c.Enabled = true; c.Endpoint = "127.0.0.1:4317" }, false},
		{"insecure ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"insecure http localhost", func(c *Config) {
			c.Enabled = true
			c.Protocol = "http/protobuf"
			c.Endpoint = "http://localhost:4318"
		}, false},
		{"sample rate", func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, true},
		{"zero interval", func(c *Config) { c.Enabled = true; c.MetricInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	obs := config.Default().Observability
	obs.EnableTelemetry = true
	obs.Protocol = "http/protobuf"
	obs.SampleRate = 0.25

	cfg := FromConfig(obs, "1.2.3")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "tutorrag", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = -1
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestResource(t *testing.T) {
	res := newResource(NewDefaultConfig())
	v, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "tutorrag", v.AsString())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestTestTelemetry(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "SupabaseStore.Upsert")
	span.SetAttributes(attribute.Int("records", 3))
	span.End()

	tel.AssertSpanAttribute(t, "SupabaseStore.Upsert", "records", int64(3))
	assert.Nil(t, tel.SpanByName("missing"))

	counter, err := tel.Meter("test").Int64Counter("tutorrag.test_total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("provider", "gemini")))
	counter.Add(ctx, 5, metric.WithAttributes(attribute.String("provider", "openai")))

	total, err := tel.CounterValue(ctx, "tutorrag.test_total")
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)

	gemini, err := tel.CounterValue(ctx, "tutorrag.test_total", attribute.String("provider", "gemini"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), gemini)
}
