package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	return New(&Config{Level: level, Format: FormatJSON, Output: buf}), buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json without output", config: &Config{Level: "debug", Format: FormatJSON}},
		{name: "console", config: &Config{Level: "info", Format: FormatConsole, Output: io.Discard}},
		{name: "unix time", config: &Config{TimeFormat: "unixms", Output: io.Discard}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	log, buf := newBuffered(t, "info")
	log.Info("batch committed")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "batch committed", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_ForTable(t *testing.T) {
	log, buf := newBuffered(t, "info")

	log.ForTable("public.parcels").With().
		Int("batch_size", 1000).
		Logger().
		Info("write started")

	entry := decode(t, buf)
	assert.Equal(t, "public.parcels", entry["table"])
	assert.Equal(t, float64(1000), entry["batch_size"])
	assert.Equal(t, "write started", entry["message"])
}

func TestLogger_ErrorWith(t *testing.T) {
	log, buf := newBuffered(t, "error")

	log.ErrorWith("batch failed", errors.New("duplicate key value violates unique constraint"), map[string]any{
		"batch":     3,
		"committed": 2000,
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "batch failed", entry["message"])
	assert.Equal(t, "duplicate key value violates unique constraint", entry["error"])
	assert.Equal(t, float64(3), entry["batch"])
	assert.Equal(t, float64(2000), entry["committed"])
}

func TestFromContext(t *testing.T) {
	log, buf := newBuffered(t, "info")

	FromContext(log.ForTable("roads").WithContext(context.Background())).Info("from context")

	entry := decode(t, buf)
	assert.Equal(t, "from context", entry["message"])
	assert.Equal(t, "roads", entry["table"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	log, buf := newBuffered(t, "info")
	prev := Global()
	SetGlobal(log)
	t.Cleanup(func() { SetGlobal(prev) })

	FromContext(context.Background()).Info("global")

	assert.Equal(t, "global", decode(t, buf)["message"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		logFunc func(*Logger)
		logged  bool
	}{
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("debug") }, true},
		{"info level skips debug", "info", func(l *Logger) {
			l.DebugWith("batch committed", map[string]any{"rows": 10})
		}, false},
		{"empty level means info", "", func(l *Logger) { l.Info("info") }, true},
		{"unknown level means info", "verbose", func(l *Logger) { l.Debug("debug") }, false},
		{"upper case level", "WARN", func(l *Logger) { l.Info("info") }, false},
		{"warn level logs warn", "warn", func(l *Logger) { l.Warn("warn") }, true},
		{"error level skips info", "error", func(l *Logger) {
			l.InfoWith("request", map[string]any{"status": 200})
		}, false},
		{"error level logs error", "error", func(l *Logger) { l.Error("error") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBuffered(t, tt.level)
			tt.logFunc(log)

			if tt.logged {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().ErrorWith("ignored", errors.New("x"), nil)
	})
}

func BenchmarkLogger_ForTable(b *testing.B) {
	log := New(&Config{Level: "info", Format: FormatJSON, Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.ForTable("parcels").With().
			Int("batch", i).
			Logger().
			Info("batch committed")
	}
}
