// Package ratelimit provides the per-channel sliding-window guard. It is
// deliberately in-memory and resets on restart: a per-run soft limit layered on
// top of the engager's per-tick execution cap, not a durable global limiter.
package ratelimit

import (
	"sync"
	"time"

	"github.com/pytrel-systems/dragon/internal/action"
)

// Limiter tracks allowed calls per channel within a trailing window.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[action.Channel][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter allowing max calls per channel within window.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[action.Channel][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether another call on the channel fits in the window, and
// records it if so. Rejected calls are not recorded.
func (l *Limiter) Allow(ch action.Channel) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.buckets[ch][:0]
	for _, t := range l.buckets[ch] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.buckets[ch] = kept
		return false
	}
	l.buckets[ch] = append(kept, now)
	return true
}
