package marketdata

import (
	"sync"
	"time"
)

// Limiter paces external calls. Implementations must be safe for use from
// multiple worker goroutines.
type Limiter interface {
	Wait()
}

// RateLimiter enforces a minimum wall-clock interval between calls, shared
// across all workers. A mutex serializes the interval check so aggregate
// throughput never exceeds the configured rate regardless of pool width.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
}

// NewRateLimiter creates a limiter from a calls-per-minute budget.
func NewRateLimiter(callsPerMinute int) *RateLimiter {
	if callsPerMinute < 1 {
		callsPerMinute = 1
	}
	return &RateLimiter{
		minInterval: time.Minute / time.Duration(callsPerMinute),
	}
}

// Wait blocks until the next call is allowed.
func (rl *RateLimiter) Wait() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.last.IsZero() {
		elapsed := time.Since(rl.last)
		if elapsed < rl.minInterval {
			time.Sleep(rl.minInterval - elapsed)
		}
	}
	rl.last = time.Now()
}

// NopLimiter performs no pacing. Used in tests.
type NopLimiter struct{}

func (NopLimiter) Wait() {}
