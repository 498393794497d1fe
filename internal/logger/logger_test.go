package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesSessionFile(t *testing.T) {
	dir := t.TempDir()
	sessionID := "test-session-logger"

	got, err := Init(Options{Dir: dir, SessionID: sessionID})
	require.NoError(t, err)
	assert.Equal(t, sessionID, got)

	LogEvent(context.Background(), "42", "scoring", "test_event", map[string]string{"msg": "ok"})
	Close()

	content, err := os.ReadFile(filepath.Join(dir, sessionID+".jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(content), sessionID)
	assert.Contains(t, string(content), "test_event")
	assert.Contains(t, string(content), `"request_id":"42"`)
}

func TestInitGeneratesSessionID(t *testing.T) {
	dir := t.TempDir()
	got, err := Init(Options{Dir: dir})
	require.NoError(t, err)
	defer Close()
	assert.NotEmpty(t, got)
}

func TestLogLevelsFilter(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelWarn)

	ctx := context.Background()
	LogDebug(ctx, "1", "scoring", "hidden_debug", nil)
	LogEvent(ctx, "1", "scoring", "hidden_info", nil)
	LogWarn(ctx, "1", "scoring", "visible_warn", nil)
	LogError(ctx, "1", "boundary", "visible_error", errors.New("boom"), nil)

	out := buf.String()
	assert.NotContains(t, out, "hidden_debug")
	assert.NotContains(t, out, "hidden_info")
	assert.Contains(t, out, "visible_warn")
	assert.Contains(t, out, "visible_error")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "boundary", rec["component"])
	assert.Equal(t, "boom", rec["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
