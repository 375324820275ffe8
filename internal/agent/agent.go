// Package agent wires the engagement pipeline together and runs it one tick
// at a time: freshness gate, state load, best-effort inbound fetch, planning,
// rate limiting, enqueue, outbox execution, state persist. A tick never runs
// concurrently with itself; callers must serialize invocations per runtime
// directory.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pytrel-systems/dragon/config"
	"github.com/pytrel-systems/dragon/internal/action"
	"github.com/pytrel-systems/dragon/internal/engage"
	"github.com/pytrel-systems/dragon/internal/freshness"
	"github.com/pytrel-systems/dragon/internal/ledger"
	"github.com/pytrel-systems/dragon/internal/planner"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/pytrel-systems/dragon/internal/ratelimit"
	"github.com/pytrel-systems/dragon/internal/state"
	"github.com/pytrel-systems/dragon/internal/telemetry"
)

// Inbound is the mention/search feed capability. The X client satisfies it;
// tests supply fakes. A nil Inbound simply plans without reactive work.
type Inbound interface {
	Me(ctx context.Context) (string, error)
	Mentions(ctx context.Context, userID, sinceID string, maxResults int) (planner.Batch, error)
	SearchRecent(ctx context.Context, query, sinceID string, maxResults int) (planner.Batch, error)
}

// Deps bundles the collaborators a tick needs.
type Deps struct {
	States  *state.Store
	Queue   *queue.Store
	Ledger  *ledger.Ledger
	Planner *planner.Planner
	Limiter *ratelimit.Limiter
	Engager *engage.Engager
	Status  freshness.Source
	Inbound Inbound
	Metrics *telemetry.Metrics
}

// Agent runs the engagement pipeline.
type Agent struct {
	cfg    *config.Config
	deps   Deps
	logger *log.Logger
	now    func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an agent from explicit dependencies.
func New(cfg *config.Config, deps Deps, opts ...Option) *Agent {
	a := &Agent{
		cfg:    cfg,
		deps:   deps,
		logger: log.New(log.Writer(), "[AGENT] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tick runs one full pipeline pass. Fetch failures degrade to empty batches;
// a failed ledger append or state write aborts loudly, since losing the audit
// trail defeats the point of the system.
func (a *Agent) Tick(ctx context.Context) error {
	now := a.now()
	d := a.deps

	status, readErr := d.Status.Read()
	fr := freshness.Evaluate(status, readErr, now, a.cfg.Freshness.Limit)
	if err := d.Ledger.Info("TICK_START", fr.Reason, map[string]any{
		"freshness_ok":      fr.OK,
		"freshness_present": fr.Present,
	}); err != nil {
		return err
	}

	st := d.States.Load()

	mentions, searches, err := a.fetchInbound(ctx, &st)
	if err != nil {
		return err
	}

	note := ""
	if fr.Present && fr.OK {
		note = "All systems nominal."
	}
	res := d.Planner.Plan(st, note, mentions, searches)
	d.Metrics.ActionsPlanned.Add(float64(len(res.Actions)))

	var candidates []action.Action
	for _, act := range res.Actions {
		if !d.Limiter.Allow(act.Channel) {
			d.Metrics.RateLimited.WithLabelValues(string(act.Channel)).Inc()
			if err := d.Ledger.Warn("RATE_LIMITED", "channel window exhausted", map[string]any{
				"action_id": act.ID,
				"channel":   act.Channel,
			}); err != nil {
				return err
			}
			continue
		}
		candidates = append(candidates, act)
	}

	created, blocked, err := d.Engager.Enqueue(candidates)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	freshOK := fr.OK || !a.cfg.Freshness.RequireOK
	executed, err := d.Engager.ExecuteOutbox(ctx, freshOK)
	if err != nil {
		return fmt.Errorf("execute outbox: %w", err)
	}

	st.MentionsCursor = res.MentionsCursor
	st.SearchCursors = res.SearchCursors
	st.Conversations = res.Conversations
	st.RepliedIDs = res.RepliedIDs
	for ch, ts := range res.LastDailyPostUnix {
		st.LastDailyPostUnix[ch] = ts
	}
	if err := d.States.Save(st); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	if counts, err := d.Queue.Count(); err == nil {
		d.Metrics.OutboxDepth.Set(float64(counts.Outbox))
	}
	d.Metrics.TicksTotal.Inc()

	a.logger.Printf("tick done: planned=%d enqueued=%d blocked=%d executed=%d", len(res.Actions), created, blocked, executed)
	return d.Ledger.Info("TICK_COMPLETE",
		fmt.Sprintf("planned=%d enqueued=%d blocked=%d executed=%d", len(res.Actions), created, blocked, executed),
		map[string]any{"freshness_ok": fr.OK})
}

// fetchInbound pulls mentions and topic searches best-effort. Any fetch
// failure is logged as a degraded branch and planning continues with an empty
// batch; inbound trouble must never block the daily cadence. A failed ledger
// append is the exception and aborts, like every other append site.
func (a *Agent) fetchInbound(ctx context.Context, st *state.State) (planner.Batch, map[string]planner.Batch, error) {
	d := a.deps
	mentions := planner.Batch{}
	searches := map[string]planner.Batch{}
	if d.Inbound == nil {
		return mentions, searches, nil
	}

	if st.PlatformUserID == "" {
		id, err := d.Inbound.Me(ctx)
		if err != nil {
			if lerr := a.warnDegraded("resolve self failed", err); lerr != nil {
				return mentions, searches, lerr
			}
		} else {
			st.PlatformUserID = id
		}
	}

	if st.PlatformUserID != "" {
		b, err := d.Inbound.Mentions(ctx, st.PlatformUserID, st.MentionsCursor, a.cfg.Inbound.MaxMentions)
		if err != nil {
			if lerr := a.warnDegraded("mention fetch failed, planning with empty batch", err); lerr != nil {
				return mentions, searches, lerr
			}
		} else {
			mentions = b
		}
	}

	for label, query := range a.cfg.Inbound.SearchQueries {
		b, err := d.Inbound.SearchRecent(ctx, query, st.SearchCursors[label], a.cfg.Inbound.MaxSearchResults)
		if err != nil {
			if lerr := a.warnDegraded("search fetch failed for "+label, err); lerr != nil {
				return mentions, searches, lerr
			}
			continue
		}
		searches[label] = b
	}
	return mentions, searches, nil
}

func (a *Agent) warnDegraded(msg string, cause error) error {
	return a.deps.Ledger.Warn("INBOUND_DEGRADED", msg, map[string]any{"error": cause.Error()})
}
