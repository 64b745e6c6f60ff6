package gemini

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry executes fn, transparently retrying rate-limit failures with
// exponentially doubling delays. Any other failure, or exhaustion of the
// retry budget, surfaces the original error unchanged.
func withRetry[T any](ctx context.Context, fn func() (T, error), maxRetries uint64, initialDelay time.Duration) (T, error) {
	var result T

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0

	op := func() error {
		v, err := fn()
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx))
	return result, err
}
