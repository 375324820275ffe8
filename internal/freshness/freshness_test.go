package freshness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func secPtr(v float64) *float64 { return &v }

func TestEvaluateAbsentStatusIsOK(t *testing.T) {
	r := Evaluate(nil, nil, time.Now(), DefaultLimit)
	if !r.OK || r.Present {
		t.Fatalf("expected absent status to degrade to ok, got %+v", r)
	}
	if r.Reason != "no external status" {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
}

func TestEvaluateUnreadableFailsClosed(t *testing.T) {
	r := Evaluate(nil, errors.New("boom"), time.Now(), DefaultLimit)
	if r.OK {
		t.Fatal("expected unreadable status to fail closed")
	}
	if r.Reason != "invalid status" {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
}

func TestEvaluateMissingFields(t *testing.T) {
	cases := []struct {
		name string
		st   Status
	}{
		{"no tick", Status{DataFreshnessSec: secPtr(10)}},
		{"no freshness", Status{LastTickUTC: time.Now().UTC().Format(time.RFC3339)}},
		{"bad timestamp", Status{LastTickUTC: "yesterday", DataFreshnessSec: secPtr(10)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Evaluate(&tc.st, nil, time.Now(), DefaultLimit)
			if r.OK {
				t.Fatal("expected missing fields to fail closed")
			}
			if r.Reason != "missing fields" {
				t.Fatalf("unexpected reason %q", r.Reason)
			}
		})
	}
}

func TestEvaluateStaleTick(t *testing.T) {
	now := time.Now()
	st := Status{
		LastTickUTC:      now.Add(-10 * time.Minute).UTC().Format(time.RFC3339),
		DataFreshnessSec: secPtr(5),
	}
	r := Evaluate(&st, nil, now, DefaultLimit)
	if r.OK || r.Reason != "stale tick" {
		t.Fatalf("expected stale tick, got %+v", r)
	}
}

func TestEvaluateStaleFreshness(t *testing.T) {
	now := time.Now()
	st := Status{
		LastTickUTC:      now.Add(-time.Minute).UTC().Format(time.RFC3339),
		DataFreshnessSec: secPtr(500),
	}
	r := Evaluate(&st, nil, now, DefaultLimit)
	if r.OK || r.Reason != "stale freshness" {
		t.Fatalf("expected stale freshness, got %+v", r)
	}
}

func TestEvaluateFresh(t *testing.T) {
	now := time.Now()
	st := Status{
		LastTickUTC:      now.Add(-time.Minute).UTC().Format(time.RFC3339),
		DataFreshnessSec: secPtr(30),
	}
	r := Evaluate(&st, nil, now, DefaultLimit)
	if !r.OK {
		t.Fatalf("expected fresh status to pass, got %+v", r)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := FileSource{Path: filepath.Join(t.TempDir(), "status.json")}
	st, err := src.Read()
	if err != nil {
		t.Fatalf("expected missing file to be absent, got %v", err)
	}
	if st != nil {
		t.Fatal("expected nil status for missing file")
	}
}

func TestFileSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	body := []byte(`{"last_tick_utc":"2026-01-02T15:04:05Z","data_freshness_sec":12}`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := FileSource{Path: path}.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if st == nil || st.LastTickUTC != "2026-01-02T15:04:05Z" || st.DataFreshnessSec == nil || *st.DataFreshnessSec != 12 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestFileSourceMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (FileSource{Path: path}).Read(); err == nil {
		t.Fatal("expected malformed status to error")
	}
}
