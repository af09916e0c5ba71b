package handler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	retryInitialInterval = 20 * time.Millisecond
	retryMaxInterval     = time.Second
)

// withRetry runs op until it succeeds, fails with a non-retryable error, or
// maxAttempts is reached. Only store contention is retried.
func withRetry[T any](ctx context.Context, maxAttempts int, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	retries := uint64(0)
	if maxAttempts > 1 {
		retries = uint64(maxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !domain.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy)
}

// retryErr is withRetry for operations without a result.
func retryErr(ctx context.Context, maxAttempts int, op func() error) error {
	_, err := withRetry(ctx, maxAttempts, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
