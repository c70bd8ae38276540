package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opst/savethat/pkg/utils/retry"
)

func TestDo(t *testing.T) {
	type When struct {
		attempts int
		results  []error
	}
	type Then struct {
		calls int
		err   error
	}

	errFatal := errors.New("fatal")
	errFlaky := fmt.Errorf("%w: flaky", retry.ErrRetry)

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			calls := 0
			err := retry.Do(
				context.Background(), when.attempts,
				retry.ExponentialBackoff(time.Millisecond, 2),
				func() error {
					r := when.results[calls]
					calls += 1
					return r
				},
			)
			if !errors.Is(err, then.err) || (then.err == nil && err != nil) {
				t.Errorf("unexpected error: (actual, expected) = (%v, %v)", err, then.err)
			}
			if calls != then.calls {
				t.Errorf("unexpected calls: (actual, expected) = (%d, %d)", calls, then.calls)
			}
		}
	}

	t.Run("it succeeds at once", theory(
		When{attempts: 3, results: []error{nil}},
		Then{calls: 1},
	))
	t.Run("it retries flaky errors", theory(
		When{attempts: 3, results: []error{errFlaky, errFlaky, nil}},
		Then{calls: 3},
	))
	t.Run("it gives up after attempts", theory(
		When{attempts: 2, results: []error{errFlaky, errFlaky}},
		Then{calls: 2, err: retry.ErrRetry},
	))
	t.Run("it stops on errors not to be retried", theory(
		When{attempts: 3, results: []error{errFlaky, errFatal}},
		Then{calls: 2, err: errFatal},
	))
}

func TestDo_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, 3, retry.ExponentialBackoff(time.Hour, 1), func() error {
		calls += 1
		cancel()
		return fmt.Errorf("%w: flaky", retry.ErrRetry)
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("unexpected calls: %d", calls)
	}
}
