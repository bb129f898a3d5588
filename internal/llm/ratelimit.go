package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is the process-wide LLM call spacer (§4.12): independent of
// any per-client HTTP rate limiting, it remembers the last call's timestamp
// and makes every caller wait until at least minSpacing has elapsed since
// it. Callers queue in strict arrival order (FIFO), so minimum spacing holds
// regardless of which goroutine issued the call.
type RateLimiter struct {
	minSpacing time.Duration

	mu           sync.Mutex
	lastCallTime time.Time
	queue        chan struct{}
}

// NewRateLimiter builds a rate limiter enforcing at least minSpacing between
// any two granted calls.
func NewRateLimiter(minSpacing time.Duration) *RateLimiter {
	r := &RateLimiter{
		minSpacing: minSpacing,
		queue:      make(chan struct{}, 1),
	}
	r.queue <- struct{}{}
	return r
}

// Wait blocks until the minimum spacing since the previous granted call has
// elapsed, then grants this call and records its timestamp. Callers that
// arrive while another is waiting queue in FIFO order via the ticket
// channel.
func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-r.queue:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { r.queue <- struct{}{} }()

	r.mu.Lock()
	wait := time.Until(r.lastCallTime.Add(r.minSpacing))
	r.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.lastCallTime = time.Now()
	r.mu.Unlock()
	return nil
}

// LastCallTime returns the timestamp of the most recently granted call, for
// tests verifying the spacing invariant.
func (r *RateLimiter) LastCallTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCallTime
}
