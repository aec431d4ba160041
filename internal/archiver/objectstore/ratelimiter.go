// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package objectstore

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket for S3 API calls, capacity 2*rps and refill
// rate rps, the Go counterpart of original_source's s3_rate_limiter.py. It
// wraps golang.org/x/time/rate but keeps the same explicit acquire/slowdown/
// reset surface and statistics the Python implementation exposes.
type RateLimiter struct {
	mu               sync.Mutex
	limiter          *rate.Limiter
	baseRPS          float64
	log              *zap.Logger
	totalRequests    int64
	throttledRequests int64
	totalWaitTime    time.Duration
}

// NewRateLimiter builds a RateLimiter with capacity 2*requestsPerSecond and
// refill rate requestsPerSecond.
func NewRateLimiter(requestsPerSecond float64, log *zap.Logger) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10.0
	}
	capacity := 2 * requestsPerSecond
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(capacity)),
		baseRPS: requestsPerSecond,
		log:     log.Named("ratelimiter"),
	}
}

// Acquire attempts to consume n tokens. If wait is true it blocks (bounded
// by the limiter's own pacing) until tokens are available; if false it
// returns immediately with false when tokens are unavailable.
func (r *RateLimiter) Acquire(n int, wait bool) bool {
	if !wait {
		ok := r.limiter.AllowN(time.Now(), n)
		r.mu.Lock()
		if ok {
			r.totalRequests++
		} else {
			r.throttledRequests++
		}
		r.mu.Unlock()
		return ok
	}

	reservation := r.limiter.ReserveN(time.Now(), n)
	if !reservation.OK() {
		return false
	}
	delay := reservation.Delay()
	if delay > 0 {
		r.log.Debug("rate limiting: waiting for tokens", zap.Duration("wait", delay))
		time.Sleep(delay)
		r.mu.Lock()
		r.totalWaitTime += delay
		r.throttledRequests++
		r.mu.Unlock()
	}
	r.mu.Lock()
	r.totalRequests++
	r.mu.Unlock()
	return true
}

// HandleSlowdown halves the refill rate and, if retryAfter is positive,
// sleeps that long — the explicit slowdown signal from spec.md §4.5.
func (r *RateLimiter) HandleSlowdown(retryAfter time.Duration) {
	r.mu.Lock()
	current := float64(r.limiter.Limit())
	newRate := current / 2
	if newRate < 1 {
		newRate = 1
	}
	r.limiter.SetLimit(rate.Limit(newRate))
	r.mu.Unlock()

	r.log.Warn("object store slowdown detected, reducing rate",
		zap.Float64("old_rate", current), zap.Float64("new_rate", newRate), zap.Duration("retry_after", retryAfter))

	if retryAfter > 0 {
		time.Sleep(retryAfter)
		r.mu.Lock()
		r.totalWaitTime += retryAfter
		r.mu.Unlock()
	}
}

// Reset restores the limiter to its originally configured rate.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	r.limiter.SetLimit(rate.Limit(r.baseRPS))
	r.mu.Unlock()
	r.log.Info("rate limiter reset to original rate", zap.Float64("rate", r.baseRPS))
}

// RateLimiterStats is a snapshot of rate limiter statistics.
type RateLimiterStats struct {
	TotalRequests     int64
	ThrottledRequests int64
	TotalWaitTime     time.Duration
	CurrentRate       float64
}

// Stats returns a snapshot of the limiter's usage statistics.
func (r *RateLimiter) Stats() RateLimiterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimiterStats{
		TotalRequests:     r.totalRequests,
		ThrottledRequests: r.throttledRequests,
		TotalWaitTime:     r.totalWaitTime,
		CurrentRate:       float64(r.limiter.Limit()),
	}
}
