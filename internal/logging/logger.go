// Package logging provides leveled logging and anomaly tracing for tradernet.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An AnomalyLogger for structured JSONL events (<dir>/anomalies.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug.
// At this level the driver also reports a summary of every step.
const LevelTrace = slog.LevelDebug - 4

// AnomalyFile is the file name the AnomalyLogger appends to.
const AnomalyFile = "anomalies.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace", "warn", "error" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// AnomalyLogger writes structured simulation events, such as inverted
// quotes, to a JSONL file. It is safe for concurrent use. A nil
// AnomalyLogger is safe to use; all methods are no-ops on nil receiver.
type AnomalyLogger struct {
	mu    sync.Mutex
	file  *os.File
	count int
	trace bool
}

// NewAnomalyLogger creates an anomaly logger writing to dir/anomalies.jsonl.
// At "info" level (the default) or above, returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewAnomalyLogger(dir string, level string) *AnomalyLogger {
	lvl := ParseLevel(level)
	if lvl >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, AnomalyFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &AnomalyLogger{file: f, trace: lvl <= LevelTrace}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (al *AnomalyLogger) Log(event map[string]any) {
	if al == nil {
		return
	}

	entry := maps.Clone(event)
	if entry == nil {
		entry = make(map[string]any, 1)
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file == nil {
		return
	}
	if _, err := al.file.Write(data); err == nil {
		al.count++
	}
}

// Tracing reports whether per-step summaries should be logged.
func (al *AnomalyLogger) Tracing() bool {
	return al != nil && al.trace
}

// Count returns the number of events written so far.
func (al *AnomalyLogger) Count() int {
	if al == nil {
		return 0
	}
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.count
}

// Close closes the underlying file. Safe to call on nil receiver.
func (al *AnomalyLogger) Close() {
	if al == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file != nil {
		al.file.Close()
		al.file = nil
	}
}
