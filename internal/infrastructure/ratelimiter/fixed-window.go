package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindowRateLimiter counts requests per source within fixed,
// clock-aligned windows.
type FixedWindowRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	size    time.Duration

	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type window struct {
	count   int
	resetAt time.Time
}

func NewFixedWindowRateLimiter(limit int, size time.Duration) *FixedWindowRateLimiter {
	if limit <= 0 {
		limit = 20
	}
	if size <= 0 {
		size = 5 * time.Second
	}

	rl := &FixedWindowRateLimiter{
		windows:     make(map[string]*window),
		limit:       limit,
		size:        size,
		cleanupTick: time.NewTicker(size),
		done:        make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether the source may proceed, and if not, how long
// until its window resets.
func (rl *FixedWindowRateLimiter) Allow(source string) (bool, time.Duration) {
	now := time.Now()
	resetAt := now.Truncate(rl.size).Add(rl.size)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[source]
	if !exists || now.After(w.resetAt) {
		rl.windows[source] = &window{count: 1, resetAt: resetAt}
		return true, 0
	}

	if w.count >= rl.limit {
		return false, time.Until(w.resetAt)
	}

	w.count++
	return true, 0
}

func (rl *FixedWindowRateLimiter) startCleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *FixedWindowRateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for source, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, source)
		}
	}
}

func (rl *FixedWindowRateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.cleanupTick.Stop()
	})
}
