package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LogSchema defines the structure of a scoring event record.
type LogSchema struct {
	Timestamp string      `json:"timestamp"`
	RequestID string      `json:"request_id"`
	Component string      `json:"component"` // boundary, scoring, server, cli, graphsource
	Event     string      `json:"event"`     // request_received, scores_computed, non_convergence
	Payload   interface{} `json:"payload"`
}

// Options configures the session logger.
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // json, text
	Dir       string // when set, events go to <Dir>/<session>.jsonl instead of stderr
	SessionID string
}

var (
	mu            sync.RWMutex
	currentLogger *slog.Logger
	logFile       *os.File
)

// Init sets up a new logging session and returns its session id.
func Init(opts Options) (string, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	var out io.Writer = os.Stderr
	var f *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create log dir: %w", err)
		}
		path := filepath.Join(opts.Dir, fmt.Sprintf("%s.jsonl", sessionID))
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return "", fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	l := newLogger(out, opts.Format, ParseLevel(opts.Level))

	mu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	currentLogger = l.With(slog.String("session_id", sessionID))
	mu.Unlock()

	LogEvent(context.Background(), "", "logger", "session_start", map[string]string{
		"message": "Scoring session started",
	})

	return sessionID, nil
}

// SetOutput replaces the logger with one writing JSON to w. Intended for tests.
func SetOutput(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLogger = newLogger(w, "json", level)
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name onto slog levels; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	l := currentLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if currentLogger == nil {
		// Fallback if not initialized
		currentLogger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return currentLogger
}

func logAt(ctx context.Context, level slog.Level, requestID, component, event string, payload interface{}) {
	get().Log(ctx, level, event,
		slog.String("request_id", requestID),
		slog.String("component", component),
		slog.Any("payload", payload),
	)
}

// LogEvent writes a structured info entry.
func LogEvent(ctx context.Context, requestID, component, event string, payload interface{}) {
	logAt(ctx, slog.LevelInfo, requestID, component, event, payload)
}

// LogDebug writes a structured debug entry.
func LogDebug(ctx context.Context, requestID, component, event string, payload interface{}) {
	logAt(ctx, slog.LevelDebug, requestID, component, event, payload)
}

// LogWarn writes a structured warning entry.
func LogWarn(ctx context.Context, requestID, component, event string, payload interface{}) {
	logAt(ctx, slog.LevelWarn, requestID, component, event, payload)
}

// LogError writes a structured error entry carrying err under "error".
func LogError(ctx context.Context, requestID, component, event string, err error, payload interface{}) {
	get().Log(ctx, slog.LevelError, event,
		slog.String("request_id", requestID),
		slog.String("component", component),
		slog.Any("error", err),
		slog.Any("payload", payload),
	)
}

// GenerateRequestID helper
func GenerateRequestID() string {
	return uuid.New().String()
}

// Close ensures the session file is closed
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
