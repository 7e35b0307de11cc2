package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, Config{Level: "warn", Format: "json"})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", "sequence", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, float64(3), rec["sequence"])
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Config{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "micunit.log")
	require.NoError(t, Init(Config{Level: "debug", Outputs: []string{path}}))
	t.Cleanup(func() { _ = Init(Config{Outputs: []string{"stderr"}}) })

	Debug("capture started", "session_id", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "capture started")
	assert.Contains(t, string(data), "session_id=abc")
}

func TestInitReportsBadFormat(t *testing.T) {
	before := Logger()
	assert.Error(t, Init(Config{Format: "xml"}))
	assert.Same(t, before, Logger())
}
