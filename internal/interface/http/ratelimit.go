package http

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// rateLimiter counts requests per key in fixed windows. A background sweeper
// drops idle keys; close stops it.
type rateLimiter struct {
	clock  clock.Clock
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	done      chan struct{}
	closeOnce sync.Once
}

type bucket struct {
	start time.Time
	count int
}

func newRateLimiter(clk clock.Clock, limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		clock:   clk,
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// allow records one request for key. When the key is over its limit it
// returns false and how long until the window resets.
func (rl *rateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.start) >= rl.window {
		rl.buckets[key] = &bucket{start: now, count: 1}
		return true, 0
	}
	if b.count >= rl.limit {
		return false, b.start.Add(rl.window).Sub(now)
	}
	b.count++
	return true, 0
}

func (rl *rateLimiter) sweepLoop() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.clock.After(rl.window):
			rl.sweep()
		}
	}
}

func (rl *rateLimiter) sweep() {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.start) >= rl.window {
			delete(rl.buckets, key)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *rateLimiter) close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}
