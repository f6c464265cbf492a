package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a smooth, non-bursty call rate across the whole process.
//
// Each grant advances a "next allowed time" watermark by the configured
// interval, computed from max(now, previous watermark), so concurrent callers
// queue strictly serially and the aggregate rate never exceeds 1/interval.
// This is useful for REST quotas where spiky bursts cause 429s.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

// New creates a limiter that grants at most one call per interval.
// A nil limiter (interval <= 0) is unthrottled.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		return nil
	}
	return &Limiter{interval: interval}
}

// Acquire blocks the caller until at least one interval has elapsed since the
// previous grant. The wait is timer-based, never a busy loop.
func (l *Limiter) Acquire() {
	if l == nil {
		return
	}

	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(l.interval)
	l.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}

// Interval returns the configured spacing between grants.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
