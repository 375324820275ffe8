// Package state persists the agent's cross-run memory: inbound cursors, daily
// post cooldowns, per-conversation reply counters and the replied-to set. One
// JSON document per runtime directory, written with atomic replace. Loading is
// fail-closed: a missing or corrupted file resets to safe empty defaults
// instead of crashing the tick.
package state

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pytrel-systems/dragon/internal/storage"
)

// Default retention windows for pruned maps.
const (
	DefaultConversationTTL = 48 * time.Hour
	DefaultRepliedTTL      = 7 * 24 * time.Hour
)

// ConversationMemory tracks reply pressure on a single conversation.
type ConversationMemory struct {
	ReplyCount    int   `json:"reply_count_24h"`
	LastReplyUnix int64 `json:"last_reply_unix"`
}

// State is the persistent record. Cursors only move forward; use Advance to
// update them.
type State struct {
	TSUnix            int64                         `json:"ts_unix"`
	PlatformUserID    string                        `json:"x_user_id,omitempty"`
	MentionsCursor    string                        `json:"x_mentions_since_id,omitempty"`
	SearchCursors     map[string]string             `json:"search_cursors"`
	LastDailyPostUnix map[string]int64              `json:"last_daily_post_by_channel"`
	Conversations     map[string]ConversationMemory `json:"conversations"`
	RepliedIDs        map[string]int64              `json:"replied_ids"`
}

// Empty returns the safe default state.
func Empty(now time.Time) State {
	return State{
		TSUnix:            now.Unix(),
		SearchCursors:     map[string]string{},
		LastDailyPostUnix: map[string]int64{},
		Conversations:     map[string]ConversationMemory{},
		RepliedIDs:        map[string]int64{},
	}
}

func (s *State) ensureMaps() {
	if s.SearchCursors == nil {
		s.SearchCursors = map[string]string{}
	}
	if s.LastDailyPostUnix == nil {
		s.LastDailyPostUnix = map[string]int64{}
	}
	if s.Conversations == nil {
		s.Conversations = map[string]ConversationMemory{}
	}
	if s.RepliedIDs == nil {
		s.RepliedIDs = map[string]int64{}
	}
}

// Prune drops conversation memory and replied-id entries older than their
// retention windows, bounding file growth.
func (s *State) Prune(now time.Time, conversationTTL, repliedTTL time.Duration) {
	if conversationTTL <= 0 {
		conversationTTL = DefaultConversationTTL
	}
	if repliedTTL <= 0 {
		repliedTTL = DefaultRepliedTTL
	}
	s.ensureMaps()
	convCutoff := now.Add(-conversationTTL).Unix()
	for id, mem := range s.Conversations {
		if mem.LastReplyUnix < convCutoff {
			delete(s.Conversations, id)
		}
	}
	repliedCutoff := now.Add(-repliedTTL).Unix()
	for id, ts := range s.RepliedIDs {
		if ts < repliedCutoff {
			delete(s.RepliedIDs, id)
		}
	}
}

// CursorLess compares two numeric-string ids. Empty compares lowest; otherwise
// a longer id is greater and equal lengths fall back to byte order, which
// matches numeric order for unpadded decimal ids.
func CursorLess(a, b string) bool {
	if a == b {
		return false
	}
	if a == "" {
		return true
	}
	if b == "" {
		return false
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// Advance returns the greater of cursor and id. Cursors never move backwards.
func Advance(cursor, id string) string {
	if CursorLess(cursor, id) {
		return id
	}
	return cursor
}

// Store loads and saves the state document.
type Store struct {
	path   string
	now    func() time.Time
	logger *log.Logger

	conversationTTL time.Duration
	repliedTTL      time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTLs overrides the pruning windows.
func WithTTLs(conversationTTL, repliedTTL time.Duration) Option {
	return func(s *Store) {
		s.conversationTTL = conversationTTL
		s.repliedTTL = repliedTTL
	}
}

// NewStore creates a state store persisting to <runtimeDir>/dragon/state.json.
func NewStore(runtimeDir string, opts ...Option) *Store {
	s := &Store{
		path:            filepath.Join(runtimeDir, "dragon", "state.json"),
		now:             time.Now,
		logger:          log.New(log.Writer(), "[STATE] ", log.LstdFlags),
		conversationTTL: DefaultConversationTTL,
		repliedTTL:      DefaultRepliedTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted state. Missing or unreadable files reset to the
// empty default; the tick must never fail because state is corrupt.
func (s *Store) Load() State {
	var st State
	if err := storage.ReadJSON(s.path, &st); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Printf("state unreadable, resetting to defaults: %v", err)
		}
		return Empty(s.now())
	}
	st.ensureMaps()
	return st
}

// Save prunes aged entries and writes the state atomically.
func (s *Store) Save(st State) error {
	now := s.now()
	st.Prune(now, s.conversationTTL, s.repliedTTL)
	st.TSUnix = now.Unix()
	return storage.WriteJSONAtomic(s.path, st)
}
