package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at Rate tokens per second.
type RateLimiter struct {
	rate  float64
	burst float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter. Burst defaults to the rate.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = max(1, int(rate))
	}
	return &RateLimiter{rate: rate, burst: float64(burst), tokens: float64(burst), lastRefill: time.Now()}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	wait := rl.reserve()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve takes one token, going into debt if needed, and returns how long
// the caller must wait for the debt to be repaid.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	rl.lastRefill = now
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	rl.tokens--
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.rate * float64(time.Second))
}
