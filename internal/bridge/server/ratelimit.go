package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window per-key counter. Windows reset lazily on the
// first request after expiry; there is no background sweeper.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]*windowCount
}

type windowCount struct {
	start time.Time
	n     int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
	}
}

// Allow records one request for key and reports whether it fits in the
// current window.
func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	wc, ok := rl.counts[key]
	if !ok || now.Sub(wc.start) >= rl.window {
		rl.counts[key] = &windowCount{start: now, n: 1}
		return true
	}
	wc.n++
	return wc.n <= rl.limit
}
