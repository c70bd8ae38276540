package rfctime_test

import (
	"testing"
	"time"

	"github.com/opst/savethat/pkg/utils/rfctime"
)

func TestParseLoose(t *testing.T) {
	type When struct {
		input string
	}
	type Then struct {
		time time.Time
		err  bool
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			got, err := rfctime.ParseLoose(when.input)
			if then.err {
				if err == nil {
					t.Errorf("expected error, but got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(then.time) {
				t.Errorf("unexpected time: (actual, expected) = (%s, %s)", got, then.time)
			}
		}
	}

	jst := time.FixedZone("JST", 9*60*60)

	t.Run("RFC3339 with Z", theory(
		When{input: "2024-03-01T12:30:00Z"},
		Then{time: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
	))
	t.Run("RFC3339 with offset", theory(
		When{input: "2024-03-01T21:30:00+09:00"},
		Then{time: time.Date(2024, 3, 1, 21, 30, 0, 0, jst)},
	))
	t.Run("fraction of second", theory(
		When{input: "2024-03-01T12:30:00.123Z"},
		Then{time: time.Date(2024, 3, 1, 12, 30, 0, 123_000_000, time.UTC)},
	))
	t.Run("without offset, it is UTC", theory(
		When{input: "2024-03-01T12:30:00"},
		Then{time: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
	))
	t.Run("space separated", theory(
		When{input: "2024-03-01 12:30"},
		Then{time: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
	))
	t.Run("date only", theory(
		When{input: "2024-03-01"},
		Then{time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	))
	t.Run("filename safe format", theory(
		When{input: "2024-03-01T12-30-05"},
		Then{time: time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)},
	))
	t.Run("garbage", theory(
		When{input: "yesterday"},
		Then{err: true},
	))
}

func TestFormatFilenameSafe(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	got := rfctime.FormatFilenameSafe(time.Date(2024, 3, 1, 21, 30, 5, 999, jst))
	if got != "2024-03-01T12-30-05" {
		t.Errorf("unexpected format: %s", got)
	}
}
