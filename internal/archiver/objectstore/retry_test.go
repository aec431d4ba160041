// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"server error retries", minio.ErrorResponse{StatusCode: 500}, true},
		{"not implemented does not retry", minio.ErrorResponse{StatusCode: 501}, false},
		{"request timeout retries", minio.ErrorResponse{StatusCode: 408}, true},
		{"too many requests retries", minio.ErrorResponse{StatusCode: 429}, true},
		{"bad request does not retry", minio.ErrorResponse{StatusCode: 400}, false},
		{"unstructured network error retries", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, retryableError(tc.err))
		})
	}
}

func TestWithRetry_SucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), zap.NewNop(), 3, NewRateLimiter(10, zap.NewNop()), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), zap.NewNop(), 5, NewRateLimiter(10, zap.NewNop()), func() error {
		calls++
		return minio.ErrorResponse{StatusCode: 403}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetry_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), zap.NewNop(), 5, NewRateLimiter(10, zap.NewNop()), func() error {
		calls++
		if calls < 3 {
			return minio.ErrorResponse{StatusCode: 500}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetry_SlowdownThenSuccessRestoresRate(t *testing.T) {
	rl := NewRateLimiter(10, zap.NewNop())
	calls := 0
	start := rl.Stats().CurrentRate

	err := withRetry(context.Background(), zap.NewNop(), 5, rl, func() error {
		calls++
		if calls == 1 {
			return minio.ErrorResponse{StatusCode: 503, Code: "SlowDown"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, start, rl.Stats().CurrentRate, "a subsequent success resets the rate limiter")
}
