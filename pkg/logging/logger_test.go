package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer) Logger {
	return NewLogger(&Config{
		Level:       LevelDebug,
		ServiceName: "test",
		JSONFormat:  true,
		Output:      buf,
	})
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	log.Info("edge promoted", F("edge_key", "MENTIONS|a|b"), F("ttl_ms", int64(3600000)))

	entry := lastEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "edge promoted", entry["message"])
	assert.Equal(t, "test", entry["service_name"])
	assert.Equal(t, "MENTIONS|a|b", entry["edge_key"])
	assert.Equal(t, float64(3600000), entry["ttl_ms"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelWarn,
		JSONFormat: true,
		Output:     &buf,
	})

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf).With(F("component", "sweeper"))

	log.Info("sweep complete")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "sweeper", entry["component"])
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	ctx := context.WithValue(context.Background(), SessionIDKey, "sess-42")
	log.WithContext(ctx).Info("promoting")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "sess-42", entry["session_id"])
}

func TestErrField(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf)

	log.Error("merge failed", Err(errors.New("connection refused")))

	entry := lastEntry(t, &buf)
	assert.Equal(t, "connection refused", entry["error"])
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Info("discarded")
	assert.Same(t, log, log.With(F("k", "v")))
	assert.Same(t, log, log.WithContext(context.Background()))
}
