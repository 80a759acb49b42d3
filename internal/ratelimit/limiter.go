// Package ratelimit provides an in-process sliding-window limiter for
// per-recipient burst protection. It is intentionally best-effort: counters are
// not shared across processes and are lost on restart (the limiter fails open).
// Horizontally scaled deployments that need global fairness should back this
// requirement with a shared counter store instead.
package ratelimit

import (
	"sync"
	"time"
)

const windowSize = 60 * time.Second

type bucketKey struct {
	recipient string
	window    int64
}

// Limiter counts sends per recipient in fixed 60-second windows.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]int
	now     func() time.Time
}

// New creates a Limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Limiter with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[bucketKey]int),
		now:     now,
	}
}

// Allow reports whether another send to recipient fits within limitPerMinute
// for the current window, incrementing the window counter when it does. The
// check and increment happen under one lock so two concurrent calls cannot
// both pass a boundary that admits only one. A non-positive limit disables
// limiting for the call.
func (l *Limiter) Allow(recipient string, limitPerMinute int) bool {
	if limitPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.now().UnixNano() / int64(windowSize)
	l.evictOld(window)

	key := bucketKey{recipient: recipient, window: window}
	if l.buckets[key] >= limitPerMinute {
		return false
	}
	l.buckets[key]++
	return true
}

// evictOld removes buckets older than two windows, bounding memory without a
// sweeper goroutine. Callers hold l.mu.
func (l *Limiter) evictOld(currentWindow int64) {
	for key := range l.buckets {
		if key.window <= currentWindow-2 {
			delete(l.buckets, key)
		}
	}
}
