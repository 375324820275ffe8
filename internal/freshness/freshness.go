// Package freshness gates live execution on an externally-written status
// record. The producer is a separate monitoring process; this package only
// decides whether its data is recent enough to permit outbound sends.
package freshness

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DefaultLimit is the staleness ceiling applied when no limit is configured.
const DefaultLimit = 180 * time.Second

// Status is the record shape written by the external monitor.
type Status struct {
	LastTickUTC      string   `json:"last_tick_utc"`
	DataFreshnessSec *float64 `json:"data_freshness_sec"`
}

// Result is the derived gate decision. Present reports whether a status record
// existed at all; Reason is machine-readable and stable.
type Result struct {
	Present bool
	OK      bool
	Reason  string
}

// Source reads the current status record. Read returns (nil, nil) when no
// record exists.
type Source interface {
	Read() (*Status, error)
}

// FileSource reads the status record from a JSON file.
type FileSource struct {
	Path string
}

// Read implements Source. A missing file is reported as absent, not an error.
func (s FileSource) Read() (*Status, error) {
	raw, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status %s: %w", s.Path, err)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", s.Path, err)
	}
	return &st, nil
}

// Evaluate derives the gate decision from a status read. The rules apply in
// order: an absent record degrades gracefully to ok, an unreadable or
// incomplete record fails closed, and a readable record fails when either the
// producer's last tick or its reported data age exceeds limit.
func Evaluate(st *Status, readErr error, now time.Time, limit time.Duration) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if readErr != nil {
		return Result{Present: true, OK: false, Reason: "invalid status"}
	}
	if st == nil {
		return Result{Present: false, OK: true, Reason: "no external status"}
	}
	if st.LastTickUTC == "" || st.DataFreshnessSec == nil {
		return Result{Present: true, OK: false, Reason: "missing fields"}
	}
	lastTick, err := time.Parse(time.RFC3339, st.LastTickUTC)
	if err != nil {
		return Result{Present: true, OK: false, Reason: "missing fields"}
	}
	if now.Sub(lastTick) > limit {
		return Result{Present: true, OK: false, Reason: "stale tick"}
	}
	if time.Duration(*st.DataFreshnessSec*float64(time.Second)) > limit {
		return Result{Present: true, OK: false, Reason: "stale freshness"}
	}
	return Result{Present: true, OK: true, Reason: "fresh"}
}
