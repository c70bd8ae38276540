package context

import (
	"context"
	"testing"
	"time"
)

// WithTest returns a cancelable context for t.
//
// When the test has a deadline, the context expires 1 second before it,
// so that goroutines under test can stop before the test is killed.
// The context is canceled on the test cleanup.
func WithTest(t *testing.T) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if deadline, ok := t.Deadline(); ok {
		var dcancel context.CancelFunc
		ctx, dcancel = context.WithDeadline(ctx, deadline.Add(-time.Second))
		parent := cancel
		cancel = func() {
			dcancel()
			parent()
		}
	}
	t.Cleanup(cancel)
	return ctx, cancel
}
