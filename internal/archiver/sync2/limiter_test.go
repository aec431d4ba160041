// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/sync2"
)

func TestLimiter_BoundsConcurrency(t *testing.T) {
	const n, limit = 200, 5
	ctx := context.Background()
	limiter := sync2.NewLimiter(limit)

	var current, max int32
	for i := 0; i < n; i++ {
		limiter.Go(ctx, func() {
			c := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&max)
				if c <= m || atomic.CompareAndSwapInt32(&max, m, c) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&current, -1)
		})
	}
	limiter.Wait()

	require.LessOrEqual(t, int(max), limit)
}

func TestLimiter_CancelledContextStopsStarting(t *testing.T) {
	limiter := sync2.NewLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	ran := limiter.Go(context.Background(), func() {
		close(started)
		<-ctx.Done()
	})
	require.True(t, ran)
	<-started

	cancel()
	ran = limiter.Go(ctx, func() {})
	require.False(t, ran)

	limiter.Wait()
}
