// Package planner turns persisted state plus inbound mentions and search
// batches into candidate actions and cursor updates. Planning is a pure
// function of its inputs: all mutation is returned in the Result for the
// caller to merge and persist, never performed in place.
package planner

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/pytrel-systems/dragon/internal/action"
	"github.com/pytrel-systems/dragon/internal/state"
)

// Config holds the cadence and throttling knobs.
type Config struct {
	DailyPostCooldown    time.Duration
	MaxRepliesPerRun     int
	MaxInitiationsPerRun int
	MinFollowerCount     int
	ConversationCap      int
	ConversationCooldown time.Duration
}

// Normalize applies defaults for unset values.
func (c Config) Normalize() Config {
	if c.DailyPostCooldown <= 0 {
		c.DailyPostCooldown = 24 * time.Hour
	}
	if c.MaxRepliesPerRun <= 0 {
		c.MaxRepliesPerRun = 3
	}
	if c.MaxInitiationsPerRun <= 0 {
		c.MaxInitiationsPerRun = 2
	}
	if c.MinFollowerCount <= 0 {
		c.MinFollowerCount = 25
	}
	if c.ConversationCap <= 0 {
		c.ConversationCap = 2
	}
	if c.ConversationCooldown <= 0 {
		c.ConversationCooldown = 2 * time.Hour
	}
	return c
}

// Tweet is one inbound item from the mention or search feed.
type Tweet struct {
	ID             string
	AuthorID       string
	Text           string
	ConversationID string
}

// Author carries the author fields the initiation filters need.
type Author struct {
	Username      string
	FollowerCount int
}

// Batch is a fetched set of inbound items plus their resolved authors. An
// empty batch plans zero candidates; it is never an error.
type Batch struct {
	Items   []Tweet
	Authors map[string]Author
}

// Result is everything a planning pass decided: candidate actions plus the
// state deltas the caller must merge and persist.
type Result struct {
	Actions           []action.Action
	MentionsCursor    string
	SearchCursors     map[string]string
	Conversations     map[string]state.ConversationMemory
	RepliedIDs        map[string]int64
	LastDailyPostUnix map[string]int64
}

// Planner produces candidate actions deterministically.
type Planner struct {
	cfg    Config
	now    func() time.Time
	logger *log.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// New creates a planner with the given config.
func New(cfg Config, opts ...Option) *Planner {
	p := &Planner{
		cfg:    cfg.Normalize(),
		now:    time.Now,
		logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan computes candidate actions from the current state, an optional
// freshness note appended to daily posts, the mention batch and the per-label
// search batches.
func (p *Planner) Plan(st state.State, freshnessNote string, mentions Batch, searches map[string]Batch) Result {
	now := p.now()

	res := Result{
		MentionsCursor:    st.MentionsCursor,
		SearchCursors:     map[string]string{},
		Conversations:     map[string]state.ConversationMemory{},
		RepliedIDs:        map[string]int64{},
		LastDailyPostUnix: map[string]int64{},
	}
	for label, cur := range st.SearchCursors {
		res.SearchCursors[label] = cur
	}
	for id, mem := range st.Conversations {
		res.Conversations[id] = mem
	}
	for id, ts := range st.RepliedIDs {
		res.RepliedIDs[id] = ts
	}
	for ch, ts := range st.LastDailyPostUnix {
		res.LastDailyPostUnix[ch] = ts
	}

	p.planDailyPosts(&res, st, freshnessNote, now)
	p.planMentionReplies(&res, mentions, now)
	p.planInitiations(&res, searches, now)

	p.logger.Printf("planned %d action(s)", len(res.Actions))
	return res
}

// planDailyPosts emits at most one post per channel per cooldown window. The
// template index is derived from the day index plus a per-channel offset, so
// the same day always yields the same text per channel and channels never
// repeat each other verbatim.
func (p *Planner) planDailyPosts(res *Result, st state.State, freshnessNote string, now time.Time) {
	cooldownSec := int64(p.cfg.DailyPostCooldown / time.Second)
	dayIndex := now.Unix() / cooldownSec

	for offset, ch := range action.Channels() {
		last := st.LastDailyPostUnix[string(ch)]
		if last != 0 && now.Unix()-last < cooldownSec {
			continue
		}
		text := dailyTemplates[(dayIndex+int64(offset))%int64(len(dailyTemplates))]
		if freshnessNote != "" {
			text = text + "\n" + freshnessNote
		}
		res.Actions = append(res.Actions, action.Action{
			ID:       fmt.Sprintf("daily:%s:%d", ch, dayIndex),
			Channel:  ch,
			Type:     action.TypePost,
			Text:     text,
			Metadata: action.Metadata{Kind: "daily_status"},
		})
		res.LastDailyPostUnix[string(ch)] = now.Unix()
	}
}

// planMentionReplies schedules at most MaxRepliesPerRun replies to new
// mentions. Deduplication is by cursor advancement alone: the cursor moves to
// the max id seen over the whole batch, including mentions that were skipped
// or arrived beyond the cap.
func (p *Planner) planMentionReplies(res *Result, mentions Batch, now time.Time) {
	replies := 0
	for _, m := range mentions.Items {
		if m.ID == "" {
			continue
		}
		res.MentionsCursor = state.Advance(res.MentionsCursor, m.ID)
		if replies >= p.cfg.MaxRepliesPerRun {
			continue
		}
		conv := m.ConversationID
		if conv == "" {
			conv = m.ID
		}
		if !p.reserveConversation(res, conv, now) {
			continue
		}
		label := ClassifyIntent(m.Text)
		res.Actions = append(res.Actions, action.Action{
			ID:        "x_reply:" + m.ID,
			Channel:   action.ChannelX,
			Type:      action.TypeReply,
			InReplyTo: m.ID,
			Text:      replyTemplate(label),
			Metadata: action.Metadata{
				Kind:        "mention_reply",
				IntentLabel: label,
				AuthorID:    m.AuthorID,
			},
		})
		replies++
	}
}

// planInitiations schedules replies to tweets discovered via topic search.
// These carry stricter filters than mention replies: never a tweet already
// replied to, a minimum author follower count, one initiation per author per
// run, and a smaller overall cap. Each label's cursor advances independently.
func (p *Planner) planInitiations(res *Result, searches map[string]Batch, now time.Time) {
	labels := make([]string, 0, len(searches))
	for label := range searches {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	initiated := 0
	authorsThisRun := map[string]struct{}{}

	for _, label := range labels {
		batch := searches[label]
		for _, tw := range batch.Items {
			if tw.ID == "" {
				continue
			}
			res.SearchCursors[label] = state.Advance(res.SearchCursors[label], tw.ID)
			if initiated >= p.cfg.MaxInitiationsPerRun {
				continue
			}
			if _, seen := res.RepliedIDs[tw.ID]; seen {
				continue
			}
			author, ok := batch.Authors[tw.AuthorID]
			if !ok || author.FollowerCount < p.cfg.MinFollowerCount {
				continue
			}
			if _, seen := authorsThisRun[tw.AuthorID]; seen {
				continue
			}
			conv := tw.ConversationID
			if conv == "" {
				conv = tw.ID
			}
			if !p.reserveConversation(res, conv, now) {
				continue
			}
			intent := ClassifyIntent(tw.Text)
			res.Actions = append(res.Actions, action.Action{
				ID:        "x_init:" + tw.ID,
				Channel:   action.ChannelX,
				Type:      action.TypeReply,
				InReplyTo: tw.ID,
				Text:      initiationTemplate(intent),
				Metadata: action.Metadata{
					Kind:        "search_reply",
					IntentLabel: intent,
					SearchLabel: label,
					AuthorID:    tw.AuthorID,
				},
			})
			res.RepliedIDs[tw.ID] = now.Unix()
			authorsThisRun[tw.AuthorID] = struct{}{}
			initiated++
		}
	}
}

// reserveConversation checks the per-conversation cap and cooldown, and on
// success reserves the slot in the working memory so the same pass cannot
// schedule two replies into one conversation.
func (p *Planner) reserveConversation(res *Result, conv string, now time.Time) bool {
	mem := res.Conversations[conv]
	if mem.ReplyCount >= p.cfg.ConversationCap {
		return false
	}
	if mem.LastReplyUnix != 0 && now.Unix()-mem.LastReplyUnix < int64(p.cfg.ConversationCooldown/time.Second) {
		return false
	}
	mem.ReplyCount++
	mem.LastReplyUnix = now.Unix()
	res.Conversations[conv] = mem
	return true
}
