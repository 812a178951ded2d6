package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SlidingWindow is an in-memory sliding-window log per key.
// Idle keys are swept at most once per window.
type SlidingWindow struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewSlidingWindow allows at most limit hits per key within window.
// A nil clock uses the wall clock.
func NewSlidingWindow(limit int, window time.Duration, clk clock.Clock) *SlidingWindow {
	if clk == nil {
		clk = clock.New()
	}
	return &SlidingWindow{
		limit:     limit,
		window:    window,
		clock:     clk,
		hits:      make(map[string][]time.Time),
		lastSweep: clk.Now(),
	}
}

// Allow records a hit for key when it fits the window.
func (sw *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	return sw.hit(key), nil
}

// AllowNow is Allow without a context, for hot paths that never block.
func (sw *SlidingWindow) AllowNow(key string) bool {
	return sw.hit(key).Allowed
}

func (sw *SlidingWindow) hit(key string) Decision {
	if sw == nil || sw.limit <= 0 {
		return Decision{Allowed: true}
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	windowStart := now.Add(-sw.window)

	if now.Sub(sw.lastSweep) >= sw.window {
		sw.sweepLocked(windowStart)
		sw.lastSweep = now
	}

	hits := prune(sw.hits[key], windowStart)
	if len(hits) >= sw.limit {
		sw.hits[key] = hits
		return Decision{Allowed: false, RetryAfter: hits[0].Sub(windowStart)}
	}

	sw.hits[key] = append(hits, now)
	return Decision{Allowed: true}
}

// Forget drops the history of key.
func (sw *SlidingWindow) Forget(key string) {
	if sw == nil {
		return
	}
	sw.mu.Lock()
	delete(sw.hits, key)
	sw.mu.Unlock()
}

// Len reports the number of tracked keys.
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.hits)
}

func (sw *SlidingWindow) sweepLocked(windowStart time.Time) {
	for key, hits := range sw.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(windowStart) {
			delete(sw.hits, key)
		}
	}
}

// prune drops hits at or before windowStart. hits is sorted ascending.
func prune(hits []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(windowStart) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
