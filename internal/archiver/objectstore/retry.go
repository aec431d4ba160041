// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package objectstore

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

// retryableError reports whether err should be retried per spec.md §4.5:
// transient (network, 5xx except 501) retries; non-retryable (4xx except
// 408/429) fails immediately.
func retryableError(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusNotImplemented: // 501
			return false
		case http.StatusRequestTimeout, http.StatusTooManyRequests: // 408, 429
			return true
		}
		if errResp.StatusCode >= 500 {
			return true
		}
		if errResp.StatusCode >= 400 {
			return false
		}
	}
	// Network-level errors (no structured response) are treated as transient.
	return true
}

// defaultSlowdownRetryAfter is how long to sleep on an explicit slowdown
// signal that carries no usable retry-after value of its own.
const defaultSlowdownRetryAfter = 2 * time.Second

// slowdownRetryAfter reports whether err is an explicit S3 slowdown signal
// (HTTP 503, or the "SlowDown"/"ServiceUnavailable" error codes some
// S3-compatible backends use in place of a bare 503) and, if so, how long to
// back off before the next attempt.
func slowdownRetryAfter(err error) (time.Duration, bool) {
	var errResp minio.ErrorResponse
	if !errors.As(err, &errResp) {
		return 0, false
	}
	if errResp.StatusCode == http.StatusServiceUnavailable || errResp.Code == "SlowDown" || errResp.Code == "ServiceUnavailable" {
		return defaultSlowdownRetryAfter, true
	}
	return 0, false
}

// withRetry executes op with exponential backoff (base^attempt, capped,
// ±10% jitter), retrying up to maxRetries times after the first attempt
// (at most maxRetries+1 calls of op), per spec.md §4.5. An explicit
// slowdown signal halves rateLimiter's refill rate and sleeps the indicated
// retry-after before the next attempt; a successful call restores it.
func withRetry(ctx context.Context, log *zap.Logger, maxRetries int, rateLimiter *RateLimiter, op func() error) error {
	attempt := 0

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 0.1 // ±10% jitter
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // bounded by maxRetries, not elapsed time

	bounded := backoff.WithMaxRetries(policy, uint64(maxRetries))
	withCtx := backoff.WithContext(bounded, ctx)

	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if retryAfter, slowdown := slowdownRetryAfter(err); slowdown {
			rateLimiter.HandleSlowdown(retryAfter)
			return err
		}
		if !retryableError(err) {
			return backoff.Permanent(err)
		}
		log.Debug("object store operation failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, withCtx)

	if err != nil {
		var permErr *backoff.PermanentError
		if errors.As(err, &permErr) {
			return archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"attempts": attempt, "retryable": false}, permErr.Err)
		}
		return archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"attempts": attempt, "retryable": true}, err)
	}
	if attempt > 1 {
		rateLimiter.Reset()
	}
	return nil
}
