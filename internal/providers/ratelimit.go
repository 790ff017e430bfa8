package providers

import (
	"context"
	"sync"
	"time"
)

const defaultRequestsPerMinute = 500

// RateLimiter paces embedding requests to a per-minute allowance. A batch
// costs one request whatever its size. A rate-limit response from the
// server blocks every caller until its Retry-After has passed.
type RateLimiter struct {
	mu sync.Mutex

	perSecond float64
	burst     float64
	available float64
	checked   time.Time
	blocked   time.Time

	granted   int64
	throttled int64
	waited    time.Duration
}

// LimiterStatus is a snapshot of a RateLimiter.
type LimiterStatus struct {
	Available    int           `json:"available"`
	PerMinute    int           `json:"per_minute"`
	Granted      int64         `json:"granted"`
	Throttled    int64         `json:"throttled"`
	Waited       time.Duration `json:"waited"`
	BlockedUntil time.Time     `json:"blocked_until,omitempty"`
}

// NewRateLimiter allows requestsPerMinute requests, 500 when <= 0.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	return &RateLimiter{
		perSecond: float64(requestsPerMinute) / 60,
		burst:     float64(requestsPerMinute),
		available: float64(requestsPerMinute),
		checked:   time.Now(),
	}
}

// Wait blocks until a request may be sent or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay := r.reserve(time.Now())
		if delay == 0 {
			return nil
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		r.mu.Lock()
		r.waited += delay
		r.mu.Unlock()
	}
}

// reserve takes one request if possible and otherwise returns how long to
// sleep before trying again.
func (r *RateLimiter) reserve(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Before(r.blocked) {
		return r.blocked.Sub(now)
	}
	r.advance(now)
	if r.available >= 1 {
		r.available--
		r.granted++
		return 0
	}
	missing := 1 - r.available
	return time.Duration(missing / r.perSecond * float64(time.Second))
}

// Record429 notes a rate-limit response. Callers are held back for
// retryAfter, and the allowance restarts empty.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.throttled++
	r.available = 0
	r.checked = now
	if until := now.Add(retryAfter); until.After(r.blocked) {
		r.blocked = until
	}
}

// Status returns a snapshot of the limiter.
func (r *RateLimiter) Status() LimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.advance(now)
	st := LimiterStatus{
		Available: int(r.available),
		PerMinute: int(r.burst),
		Granted:   r.granted,
		Throttled: r.throttled,
		Waited:    r.waited,
	}
	if now.Before(r.blocked) {
		st.BlockedUntil = r.blocked
	}
	return st
}

// advance credits the allowance earned since the last check. Caller holds mu.
func (r *RateLimiter) advance(now time.Time) {
	if elapsed := now.Sub(r.checked).Seconds(); elapsed > 0 {
		r.available = min(r.burst, r.available+elapsed*r.perSecond)
	}
	r.checked = now
}
