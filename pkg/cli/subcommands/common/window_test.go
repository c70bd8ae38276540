package common_test

import (
	"errors"
	"testing"
	"time"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	kflag "github.com/opst/savethat/pkg/commandline/flag"
	"github.com/youta-t/flarc"
)

func TestWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	type When struct {
		before, after, last string
	}
	type Then struct {
		before, after *time.Time
		err           error
	}
	at := func(s string) *time.Time {
		v, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return &v
	}
	eq := func(a, b *time.Time) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Equal(*b)
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			before, after, last := &kflag.OptionalLooseRFC3339{}, &kflag.OptionalLooseRFC3339{}, &kflag.Last{}
			if when.before != "" {
				if err := before.Set(when.before); err != nil {
					t.Fatal(err)
				}
			}
			if when.after != "" {
				if err := after.Set(when.after); err != nil {
					t.Fatal(err)
				}
			}
			if when.last != "" {
				if err := last.Set(when.last); err != nil {
					t.Fatal(err)
				}
			}

			b, a, err := common.Window(before, after, last, now)
			if !errors.Is(err, then.err) {
				t.Fatalf("unexpected error: (actual, expected) = (%v, %v)", err, then.err)
			}
			if err != nil {
				return
			}
			if !eq(b, then.before) || !eq(a, then.after) {
				t.Errorf("unexpected window: (before, after) = (%v, %v)", b, a)
			}
		}
	}

	t.Run("nothing set, unbounded", theory(When{}, Then{}))
	t.Run("before and after are passed through", theory(
		When{before: "2024-02-01", after: "2024-01-01T10:00Z"},
		Then{before: at("2024-02-01T00:00:00Z"), after: at("2024-01-01T10:00:00Z")},
	))
	t.Run("last is an after bound from now", theory(
		When{last: "3h"},
		Then{after: at("2024-03-01T09:00:00Z")},
	))
	t.Run("last without unit is minutes", theory(
		When{last: "30", before: "2024-03-01 12:00"},
		Then{before: at("2024-03-01T12:00:00Z"), after: at("2024-03-01T11:30:00Z")},
	))
	t.Run("last with after is usage error", theory(
		When{last: "1d", after: "2024-01-01"},
		Then{err: flarc.ErrUsage},
	))
	t.Run("reversed window is usage error", theory(
		When{before: "2024-01-01", after: "2024-02-01"},
		Then{err: flarc.ErrUsage},
	))
}
