package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery controls how often Allow scans for elapsed windows belonging to
// keys that stopped sending requests.
const sweepEvery = 1024

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. State lives only in
// memory; a restart resets all counters. Construct one per server instance
// and inject it where requests are handled.
type MemoryLimiter struct {
	mu       sync.Mutex
	capacity int
	interval time.Duration
	buckets  map[string]*window
	calls    int
	now      func() time.Time
}

// NewMemoryLimiter builds a limiter admitting capacity requests per key per
// interval.
func NewMemoryLimiter(capacity int, interval time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		capacity: capacity,
		interval: interval,
		buckets:  make(map[string]*window),
		now:      time.Now,
	}
}

// Allow consumes one token for key. It returns false once capacity requests
// have been admitted within the current window; the counter resets when the
// window elapses.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[key] = &window{count: 1, resetAt: now.Add(l.interval)}
		return true, nil
	}
	if b.count >= l.capacity {
		return false, nil
	}
	b.count++
	return true, nil
}

// sweepLocked drops entries whose window has elapsed. Callers hold l.mu.
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}
