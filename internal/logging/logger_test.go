package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tutorrag/internal/config"
)

func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Writer = &buf
	if mutate != nil {
		mutate(cfg)
	}
	l, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestConfigFor(t *testing.T) {
	cfg, err := ConfigFor("debug", "console")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	cfg, err = ConfigFor("TRACE", "")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	_, err = ConfigFor("loud", "json")
	assert.Error(t, err)

	_, err = ConfigFor("info", "xml")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no outputs", func(c *Config) { c.Stdout = false }},
		{"zero sampling tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", 201)} }},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, NewDefaultConfig().Validate())
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	lvl, err = LevelFromString("Trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	_, err = LevelFromString("verbose")
	assert.Error(t, err)
}

func TestLogger_JSONWithContextFields(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithDocumentID(ctx, "bai-tap-1")

	l.Info(ctx, "ingested document", zap.Int("chunks", 3), zap.Int("token_estimate", 120))
	require.NoError(t, l.Sync())

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	got := lines[0]
	assert.Equal(t, "ingested document", got["msg"])
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "tutorrag", got["service"])
	assert.Equal(t, sc.TraceID().String(), got["trace_id"])
	assert.Equal(t, sc.SpanID().String(), got["span_id"])
	assert.Equal(t, true, got["trace_sampled"])
	assert.Equal(t, "req-42", got["request_id"])
	assert.Equal(t, "bai-tap-1", got["document_id"])
	assert.Equal(t, float64(120), got["token_estimate"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, nil)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Trace(ctx, "hidden too")
	l.Warn(ctx, "shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.False(t, l.Enabled(zapcore.DebugLevel))
}

func TestLogger_Redaction(t *testing.T) {
	l, buf := newBufferLogger(t, nil)
	ctx := context.Background()

	l.With(zap.String("supabase_service_role_key", "eyJhbGciOi")).Info(ctx, "with field")
	l.Info(ctx, "fields",
		zap.String("api_key", "k-123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("url", "postgres://tutor:hunter2@db:5432/tutor"),
		zap.String("gemini", "AIza"+strings.Repeat("x", 35)),
		zap.Any("dsn", map[string]string{"password": "p"}),
		zap.String("title", "Phương trình"),
		Secret("key", config.Secret("abcd")),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "[REDACTED]", lines[0]["supabase_service_role_key"])

	got := lines[1]
	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", got["header"])
	assert.Equal(t, "[REDACTED:pattern]", got["url"])
	assert.Equal(t, "[REDACTED:pattern]", got["gemini"])
	assert.Equal(t, "[REDACTED]", got["dsn"])
	assert.Equal(t, "Phương trình", got["title"])
	assert.Equal(t, "[REDACTED:4]", got["key"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestLogger_RedactionDisabled(t *testing.T) {
	l, buf := newBufferLogger(t, func(c *Config) { c.Redaction.Enabled = false })
	l.Info(context.Background(), "x", zap.String("api_key", "k-123"))
	assert.Equal(t, "k-123", decodeLines(t, buf)[0]["api_key"])
}

func TestLogger_SamplingNeverDropsErrors(t *testing.T) {
	l, buf := newBufferLogger(t, func(c *Config) {
		c.Sampling.Initial = 2
		c.Sampling.Thereafter = 0
	})
	ctx := context.Background()
	for range 10 {
		l.Info(ctx, "repeated")
		l.Error(ctx, "failure")
	}

	var infos, errs int
	for _, line := range decodeLines(t, buf) {
		switch line["msg"] {
		case "repeated":
			infos++
		case "failure":
			errs++
		}
	}
	assert.Equal(t, 2, infos)
	assert.Equal(t, 10, errs)
}

func TestLogger_ConsoleFormat(t *testing.T) {
	l, buf := newBufferLogger(t, func(c *Config) { c.Format = "console" })
	l.Info(context.Background(), "hello", zap.String("k", "v"))
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), `"k": "v"`)
}

func TestContext_IDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))

	assert.Equal(t, ctx, WithRequestID(ctx, ""))
	assert.Equal(t, ctx, WithRequestID(ctx, "bad id\n"))
	assert.Equal(t, ctx, WithDocumentID(ctx, strings.Repeat("a", maxIDLen+1)))

	ctx = WithRequestID(ctx, "01HZX:abc.def")
	assert.Equal(t, "01HZX:abc.def", RequestIDFromContext(ctx))
	ctx = WithDocumentID(ctx, "6f1c0e7a-3b7a-5d7e-9d1a-2c7a1e0b9f00")
	assert.Equal(t, "6f1c0e7a-3b7a-5d7e-9d1a-2c7a1e0b9f00", DocumentIDFromContext(ctx))
}

func TestContext_Logger(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "from ctx")
	tl.AssertLogged(t, zapcore.InfoLevel, "from ctx")
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRequestID(context.Background(), "r1")

	tl.Trace(ctx, "wire", zap.String("payload", "{}"))
	tl.Named("rag").With(zap.String("stage", "embed")).Warn(ctx, "slow provider")

	tl.AssertLogged(t, TraceLevel, "wire")
	tl.AssertLogged(t, zapcore.WarnLevel, "slow")
	tl.AssertField(t, "slow provider", "stage", "embed")
	tl.AssertField(t, "wire", "request_id", "r1")
	assert.Equal(t, 1, tl.FilterMessage("wire").Len())

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestNewLogger_OTelOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stdout = false
	cfg.OTel = true
	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}
