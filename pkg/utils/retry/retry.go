package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry marks errors worth retrying. Wrap it with fmt.Errorf("%w", ...) or errors.Join.
var ErrRetry = errors.New("retry")

// Backoff is a (blocking) function returns when to retry.
//
// If context is canceled, Backoff should return the cause of it.
type Backoff func(context.Context) error

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
func ExponentialBackoff(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-timer.C:
			interval = time.Duration(float64(interval) * r)
			return nil
		}
	}
}

// Do calls f until it succeeds, returns an error not marked with ErrRetry,
// or it has been called `attempts` times.
//
// Calls are separated by b. The last error of f is returned.
func Do(ctx context.Context, attempts int, b Backoff, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if 0 < i {
			if berr := b(ctx); berr != nil {
				return errors.Join(err, berr)
			}
		}
		err = f()
		if err == nil || !errors.Is(err, ErrRetry) {
			return err
		}
	}
	return err
}
