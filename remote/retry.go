package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultWriteRetries = 3

// WithRetry runs op until it succeeds, fails permanently, or maxRetries
// retries have been spent. Session-fatal and context errors are never retried.
func WithRetry(ctx context.Context, maxRetries uint64, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
