// Package queue implements the durable file-based job queue. Each job is one
// JSON document named by its action ID, which makes enqueue idempotent: a
// second enqueue of the same logical action is a silent no-op. Jobs move
// between three areas via atomic renames: outbox (pending), sent (terminal
// success) and dead (terminal rejection).
//
// The queue is not safe under concurrent writers; callers must serialize
// invocations per runtime directory.
package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pytrel-systems/dragon/internal/action"
	"github.com/pytrel-systems/dragon/internal/storage"
)

// Area names a queue directory.
type Area string

const (
	AreaOutbox Area = "outbox"
	AreaSent   Area = "sent"
	AreaDead   Area = "dead"
)

// Counts reports the number of jobs per area.
type Counts struct {
	Outbox int `json:"outbox"`
	Sent   int `json:"sent"`
	Dead   int `json:"dead"`
}

// Store is a file-based queue rooted at <runtimeDir>/dragon.
type Store struct {
	root string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a queue store under runtimeDir.
func New(runtimeDir string, opts ...Option) *Store {
	s := &Store{
		root: filepath.Join(runtimeDir, "dragon"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory backing an area.
func (s *Store) Dir(area Area) string {
	return filepath.Join(s.root, string(area))
}

func (s *Store) jobPath(area Area, id string) string {
	return filepath.Join(s.Dir(area), id+".json")
}

// Enqueue writes each action as an outbox job file. Actions without an ID get
// a generated one. If a job file for the ID already exists the action is
// skipped silently. Returns the paths of jobs actually created.
func (s *Store) Enqueue(actions []action.Action) ([]string, error) {
	if err := storage.EnsureDir(s.Dir(AreaOutbox)); err != nil {
		return nil, err
	}
	var created []string
	for _, a := range actions {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedUnix == 0 {
			a.CreatedUnix = s.now().Unix()
		}
		path := s.jobPath(AreaOutbox, a.ID)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := storage.WriteJSONAtomic(path, a); err != nil {
			return created, fmt.Errorf("enqueue %s: %w", a.ID, err)
		}
		created = append(created, path)
	}
	return created, nil
}

// ListOutbox returns up to limit pending job paths in deterministic
// (lexicographic by filename) order.
func (s *Store) ListOutbox(limit int) ([]string, error) {
	return s.List(AreaOutbox, limit)
}

// List returns up to limit job paths in an area, ordered by filename.
func (s *Store) List(area Area, limit int) ([]string, error) {
	dir := s.Dir(area)
	if err := storage.EnsureDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", area, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

// ReadJob decodes the job document at path.
func (s *Store) ReadJob(path string) (action.Action, error) {
	var a action.Action
	if err := storage.ReadJSON(path, &a); err != nil {
		return action.Action{}, fmt.Errorf("read job %s: %w", filepath.Base(path), err)
	}
	return a, nil
}

// MarkSent writes the executed job (with receipt and execution timestamp) into
// the sent area and removes the outbox source. The sent copy lands before the
// outbox entry disappears, so a crash in between leaves a duplicate rather
// than a lost record; the next tick re-executes the leftover outbox entry,
// which makes delivery at-least-once across that crash window.
func (s *Store) MarkSent(outboxPath string, executed action.Action) error {
	if err := storage.WriteJSONAtomic(s.jobPath(AreaSent, executed.ID), executed); err != nil {
		return err
	}
	if err := os.Remove(outboxPath); err != nil {
		return fmt.Errorf("clear outbox %s: %w", executed.ID, err)
	}
	return nil
}

// MoveToDead relocates a job file into the dead-letter area. Dead is terminal:
// nothing in the pipeline requeues from it.
func (s *Store) MoveToDead(path string) (string, error) {
	return storage.Move(path, s.Dir(AreaDead))
}

// Requeue moves a dead job back into the outbox. This is an operator action
// exposed through the CLI, never taken by the pipeline itself.
func (s *Store) Requeue(id string) error {
	src := s.jobPath(AreaDead, id)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("dead job %s: %w", id, err)
	}
	if _, err := storage.Move(src, s.Dir(AreaOutbox)); err != nil {
		return err
	}
	return nil
}

// Count tallies jobs per area.
func (s *Store) Count() (Counts, error) {
	var c Counts
	for _, area := range []Area{AreaOutbox, AreaSent, AreaDead} {
		paths, err := s.List(area, 0)
		if err != nil {
			return Counts{}, err
		}
		switch area {
		case AreaOutbox:
			c.Outbox = len(paths)
		case AreaSent:
			c.Sent = len(paths)
		case AreaDead:
			c.Dead = len(paths)
		}
	}
	return c, nil
}
