package providers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// withRetry runs op with a short exponential backoff. Provider pagination
// calls are retried a couple of times before the caller decides whether to
// skip the (repo, author) pair or fail the whole fetch.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, backoff.WithMaxRetries(bo, 2))
}
