// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package objectstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRateLimiter_AcquireNoWaitThrottles(t *testing.T) {
	r := NewRateLimiter(1, zap.NewNop())

	require.True(t, r.Acquire(1, false))
	require.False(t, r.Acquire(5, false))

	stats := r.Stats()
	require.Equal(t, int64(1), stats.TotalRequests)
	require.Equal(t, int64(1), stats.ThrottledRequests)
}

func TestRateLimiter_HandleSlowdownHalvesRate(t *testing.T) {
	r := NewRateLimiter(10, zap.NewNop())
	r.HandleSlowdown(0)
	require.InDelta(t, 5.0, r.Stats().CurrentRate, 0.001)

	r.HandleSlowdown(0)
	require.InDelta(t, 2.5, r.Stats().CurrentRate, 0.001)
}

func TestRateLimiter_ResetRestoresBaseRate(t *testing.T) {
	r := NewRateLimiter(10, zap.NewNop())
	r.HandleSlowdown(0)
	require.NotEqual(t, 10.0, r.Stats().CurrentRate)

	r.Reset()
	require.InDelta(t, 10.0, r.Stats().CurrentRate, 0.001)
}

func TestRateLimiter_HandleSlowdownSleepsRetryAfter(t *testing.T) {
	r := NewRateLimiter(10, zap.NewNop())
	start := time.Now()
	r.HandleSlowdown(20 * time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.GreaterOrEqual(t, r.Stats().TotalWaitTime, 20*time.Millisecond)
}

func TestNewRateLimiter_NonPositiveRPSDefaults(t *testing.T) {
	r := NewRateLimiter(0, zap.NewNop())
	require.InDelta(t, 10.0, r.Stats().CurrentRate, 0.001)
}
