// Package ledger implements the append-only audit trail. Every decision and
// outcome of a tick is written as one JSON object per line; the file is never
// mutated or truncated. A failed append is a StorageError-class failure and is
// surfaced to the caller so the tick can abort loudly rather than run without
// an audit trail.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pytrel-systems/dragon/internal/storage"
)

// Level classifies the severity of a ledger event.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Event is a single audit record.
type Event struct {
	Timestamp string         `json:"ts"`
	RunID     string         `json:"run_id"`
	Level     Level          `json:"level"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Evidence  map[string]any `json:"evidence,omitempty"`
}

// Ledger appends events to a newline-delimited JSON file under the runtime
// directory. Each Ledger instance carries the run ID of the invocation that
// created it.
type Ledger struct {
	path  string
	runID string
	now   func() time.Time
	mu    sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger writing to <runtimeDir>/dragon/ledger.jsonl with a
// fresh run ID.
func New(runtimeDir string, opts ...Option) (*Ledger, error) {
	path := filepath.Join(runtimeDir, "dragon", "ledger.jsonl")
	if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	l := &Ledger{
		path:  path,
		runID: uuid.NewString(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// RunID returns the run identifier stamped on every event.
func (l *Ledger) RunID() string { return l.runID }

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Info appends an INFO event.
func (l *Ledger) Info(eventType, message string, evidence map[string]any) error {
	return l.append(LevelInfo, eventType, message, evidence)
}

// Warn appends a WARN event.
func (l *Ledger) Warn(eventType, message string, evidence map[string]any) error {
	return l.append(LevelWarn, eventType, message, evidence)
}

// Error appends an ERROR event.
func (l *Ledger) Error(eventType, message string, evidence map[string]any) error {
	return l.append(LevelError, eventType, message, evidence)
}

func (l *Ledger) append(level Level, eventType, message string, evidence map[string]any) error {
	ev := Event{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		RunID:     l.runID,
		Level:     level,
		EventType: eventType,
		Message:   message,
		Evidence:  evidence,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ledger event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	return nil
}
