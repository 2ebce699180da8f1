// Package logging provides leveled logging and decision tracing for nudge.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A DecisionLogger for structured JSONL activation traces (.nudge/decisions.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level decision
// traces include the full trigger context of every evaluation.
const LevelTrace = slog.LevelDebug - 4

// DecisionsFile is the decision trace file name inside the nudge directory.
const DecisionsFile = "decisions.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing text to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

// NewJSONLogger creates a leveled slog.Logger writing JSON lines to w.
// The CLI uses it when --json is set so stderr stays machine readable.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(level)))
}

func handlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: ParseLevel(level),
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
}

// Decision is one pipeline outcome as written to the trace.
type Decision struct {
	Event       string          `json:"event"`
	SessionID   string          `json:"session_id"`
	Interaction int             `json:"interaction"`
	Path        string          `json:"path,omitempty"`
	Gated       bool            `json:"gated"`
	TimedOut    bool            `json:"timed_out,omitempty"`
	Activations []DecisionEntry `json:"activations"`

	// Trigger is the analyzed context. Written at trace level only.
	Trigger any `json:"trigger,omitempty"`
}

// DecisionEntry is one activation in a Decision.
type DecisionEntry struct {
	ConstraintID string  `json:"constraint_id"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

// DecisionLogger writes structured decision events to a JSONL file.
// It is safe for concurrent use. A nil DecisionLogger is safe to use;
// all methods are no-ops on nil receiver.
type DecisionLogger struct {
	mu    sync.Mutex
	file  *os.File
	trace bool
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, DecisionsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &DecisionLogger{file: f, trace: lvl <= LevelTrace}
}

// Trace reports whether full trigger contexts are recorded.
func (dl *DecisionLogger) Trace() bool {
	return dl != nil && dl.trace
}

// LogDecision writes d, dropping the trigger context below trace level.
func (dl *DecisionLogger) LogDecision(d Decision) {
	if dl == nil {
		return
	}
	if !dl.trace {
		d.Trigger = nil
	}
	if d.Activations == nil {
		d.Activations = []DecisionEntry{}
	}
	dl.write(struct {
		Time string `json:"time"`
		Decision
	}{Time: now(), Decision: d})
}

// Log writes a free-form event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}

	// Copy to avoid mutating caller's map
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = now()
	dl.write(entry)
}

func (dl *DecisionLogger) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return
	}
	_, _ = dl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
