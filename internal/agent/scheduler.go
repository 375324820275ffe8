package agent

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Scheduler invokes Tick on a cron cadence from a single goroutine, which
// keeps the at-most-one-concurrent-tick precondition of the file-based queue.
type Scheduler struct {
	agent  *Agent
	cron   string
	poll   time.Duration
	logger *log.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler driving the agent per cronSpec. Supported
// specs: "@daily", "@hourly" and standard cron expressions.
func NewScheduler(a *Agent, cronSpec string) *Scheduler {
	return &Scheduler{
		agent:  a,
		cron:   cronSpec,
		poll:   time.Minute,
		logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Run blocks until ctx is cancelled, firing a tick whenever the cadence says
// one is due. Tick errors are logged and the loop continues; the next tick
// retries whatever was left queued.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var last *time.Time
	for {
		if isDue(s.cron, last, s.now()) {
			if err := s.agent.Tick(ctx); err != nil {
				s.logger.Printf("tick failed: %v", err)
			}
			t := s.now()
			last = &t
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// isDue determines whether a tick should run now given the cadence spec and
// the last run time. Invalid cron expressions fall back to @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return last == nil || now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
