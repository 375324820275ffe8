// Package engage bridges planner output to the job queue and the channel
// senders. Content passes the policy gate twice: once before it may enter the
// durable queue and again immediately before execution. Policy failures are
// terminal (dead-letter); transient send failures leave the job queued for the
// next tick.
package engage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pytrel-systems/dragon/internal/action"
	"github.com/pytrel-systems/dragon/internal/channel"
	"github.com/pytrel-systems/dragon/internal/ledger"
	"github.com/pytrel-systems/dragon/internal/policy"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/pytrel-systems/dragon/internal/telemetry"
)

// Config holds the execution knobs.
type Config struct {
	// MaxPerRun caps jobs executed in one tick.
	MaxPerRun int
	// Cooldown is slept between consecutive sends within a tick.
	Cooldown time.Duration
	// RequireFreshnessOK suspends execution while the freshness gate is not
	// ok. Queued jobs are left untouched for the next fresh tick.
	RequireFreshnessOK bool
}

// Normalize applies defaults for unset values.
func (c Config) Normalize() Config {
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = 4
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Engager enqueues and executes actions under the policy and freshness gates.
type Engager struct {
	queue   *queue.Store
	ledger  *ledger.Ledger
	senders map[action.Channel]channel.Sender
	metrics *telemetry.Metrics
	cfg     Config
	logger  *log.Logger
	now     func() time.Time
	sleep   func(time.Duration)
}

// Option configures an Engager.
type Option func(*Engager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engager) { e.now = now }
}

// WithSleep overrides the inter-send cooldown sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engager) { e.sleep = sleep }
}

// New creates an engager over the given queue, ledger and senders.
func New(q *queue.Store, led *ledger.Ledger, senders map[action.Channel]channel.Sender, metrics *telemetry.Metrics, cfg Config, opts ...Option) *Engager {
	e := &Engager{
		queue:   q,
		ledger:  led,
		senders: senders,
		metrics: metrics,
		cfg:     cfg.Normalize(),
		logger:  log.New(log.Writer(), "[ENGAGE] ", log.LstdFlags),
		now:     time.Now,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue runs policy gate #1 over the candidates and writes the allowed ones
// into the outbox. A single bad action degrades to blocked and the rest
// proceed; only a ledger or queue write failure aborts.
func (e *Engager) Enqueue(actions []action.Action) (created, blocked int, err error) {
	var allowed []action.Action
	for _, a := range actions {
		ok, reasons, norm := policy.ValidateAction(a)
		if !ok {
			blocked++
			e.metrics.ActionsBlocked.WithLabelValues("enqueue").Inc()
			if err := e.ledger.Warn("ENGAGE_ACTION_BLOCKED", "policy_block", map[string]any{
				"action_id": norm.ID,
				"channel":   norm.Channel,
				"reasons":   reasons,
			}); err != nil {
				return created, blocked, err
			}
			continue
		}
		allowed = append(allowed, norm)
	}

	paths, err := e.queue.Enqueue(allowed)
	if err != nil {
		return len(paths), blocked, fmt.Errorf("enqueue: %w", err)
	}
	created = len(paths)

	if err := e.ledger.Info("ENGAGE_ENQUEUED",
		fmt.Sprintf("enqueued=%d blocked=%d", created, blocked),
		map[string]any{"created": paths}); err != nil {
		return created, blocked, err
	}
	return created, blocked, nil
}

// ExecuteOutbox runs up to MaxPerRun of the oldest-by-id queued jobs through
// policy gate #2 and the channel senders. Transient send failures leave the
// job in the outbox; policy failures and unroutable channels dead-letter it.
// A failed ledger append or sent-record write aborts the pass.
func (e *Engager) ExecuteOutbox(ctx context.Context, freshnessOK bool) (int, error) {
	if e.cfg.RequireFreshnessOK && !freshnessOK {
		err := e.ledger.Warn("ENGAGE_SKIPPED_STALE", "freshness gate blocked engagement", map[string]any{
			"require_freshness_ok": true,
			"freshness_ok":         freshnessOK,
		})
		return 0, err
	}

	jobs, err := e.queue.ListOutbox(e.cfg.MaxPerRun)
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, path := range jobs {
		job, readErr := e.queue.ReadJob(path)
		if readErr != nil {
			if err := e.deadLetter(path, "ENGAGE_JOB_BLOCKED", "unreadable job", map[string]any{
				"job":   path,
				"error": readErr.Error(),
			}); err != nil {
				return executed, err
			}
			continue
		}

		ok, reasons, norm := policy.ValidateAction(job)
		if !ok {
			if err := e.deadLetter(path, "ENGAGE_JOB_BLOCKED", "policy_block", map[string]any{
				"action_id": norm.ID,
				"reasons":   reasons,
			}); err != nil {
				return executed, err
			}
			continue
		}

		sender, routable := e.senders[norm.Channel]
		if !routable {
			// Only reachable for jobs written by an older binary or by hand.
			if err := e.deadLetter(path, "ENGAGE_EXEC_FAIL", "unknown_channel", map[string]any{
				"action_id": norm.ID,
				"channel":   norm.Channel,
			}); err != nil {
				return executed, err
			}
			continue
		}

		if executed > 0 {
			e.sleep(e.cfg.Cooldown)
		}

		receipt, sendErr := dispatch(ctx, sender, norm)
		if sendErr != nil {
			// Fail-open: the job stays queued and retries next tick.
			e.metrics.TransientFailures.Inc()
			if err := e.ledger.Error("ENGAGE_EXEC_FAIL", sendErr.Error(), map[string]any{
				"action_id": norm.ID,
				"transient": channel.IsTransient(sendErr),
			}); err != nil {
				return executed, err
			}
			continue
		}

		norm.Receipt = receipt
		norm.ExecutedUnix = e.now().Unix()
		if err := e.queue.MarkSent(path, norm); err != nil {
			return executed, fmt.Errorf("record sent %s: %w", norm.ID, err)
		}
		executed++
		e.metrics.ActionsSent.WithLabelValues(string(norm.Channel)).Inc()
		if err := e.ledger.Info("ENGAGE_EXECUTED",
			fmt.Sprintf("%s:%s", norm.Channel, norm.Type),
			map[string]any{"action_id": norm.ID}); err != nil {
			return executed, err
		}
	}
	return executed, nil
}

func (e *Engager) deadLetter(path, eventType, message string, evidence map[string]any) error {
	e.metrics.ActionsDead.Inc()
	e.metrics.ActionsBlocked.WithLabelValues("execute").Inc()
	if _, err := e.queue.MoveToDead(path); err != nil {
		return err
	}
	return e.ledger.Warn(eventType, message, evidence)
}

func dispatch(ctx context.Context, sender channel.Sender, a action.Action) ([]byte, error) {
	if a.Type == action.TypeReply {
		return sender.Reply(ctx, a.InReplyTo, a.Text)
	}
	return sender.Post(ctx, a.Text)
}
