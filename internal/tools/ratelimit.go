package tools

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterStaleAfter = 30 * time.Minute

// RateLimiter enforces per-key (agent:user) tool execution limits using
// a token bucket. Keys unseen for a while are pruned periodically.
type RateLimiter struct {
	limiters sync.Map // key → *limiterEntry
	r        rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute executions with the
// given burst. perMinute <= 0 disables limiting (returns nil).
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	rl := &RateLimiter{
		r:     rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks whether an execution for key may proceed.
func (rl *RateLimiter) Allow(key string) error {
	entry := rl.getOrCreate(key)
	entry.mu.Lock()
	entry.lastSeen = time.Now()
	entry.mu.Unlock()
	if !entry.limiter.Allow() {
		return fmt.Errorf("tool rate limit exceeded, try again shortly")
	}
	return nil
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rl.r, rl.burst),
		lastSeen: time.Now(),
	}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterStaleAfter)
		rl.limiters.Range(func(key, v interface{}) bool {
			entry := v.(*limiterEntry)
			entry.mu.Lock()
			stale := entry.lastSeen.Before(cutoff)
			entry.mu.Unlock()
			if stale {
				rl.limiters.Delete(key)
			}
			return true
		})
	}
}
