package flag

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opst/savethat/pkg/utils/rfctime"
)

// OptionalLooseRFC3339 is a flag.Value for date-time, which may be left unset.
//
// Accepted formats are those of rfctime.ParseLoose.
type OptionalLooseRFC3339 struct {
	v     time.Time
	isSet bool
}

func (t *OptionalLooseRFC3339) String() string {
	if t == nil || !t.isSet {
		return ""
	}
	return t.v.Format(time.RFC3339)
}

func (t *OptionalLooseRFC3339) Set(v string) error {
	got, err := rfctime.ParseLoose(v)
	if err != nil {
		return err
	}
	t.v = got
	t.isSet = true
	return nil
}

// Time returns the time set, or nil if not set.
func (t *OptionalLooseRFC3339) Time() *time.Time {
	if t == nil || !t.isSet {
		return nil
	}
	return &t.v
}

// Last is a flag.Value for a lookback period, like "30", "30m", "3h" or "2d".
//
// The unit is one of m (minutes), h (hours) or d (days) in either case. No unit means minutes.
type Last struct {
	d     time.Duration
	expr  string
	isSet bool
}

func (l *Last) String() string {
	if l == nil || !l.isSet {
		return ""
	}
	return l.expr
}

func (l *Last) Set(v string) error {
	d, err := ParseLast(v)
	if err != nil {
		return err
	}
	l.d = d
	l.expr = v
	l.isSet = true
	return nil
}

// Duration returns the period set, or nil if not set.
func (l *Last) Duration() *time.Duration {
	if l == nil || !l.isSet {
		return nil
	}
	return &l.d
}

// Since returns now - period, or nil if not set.
func (l *Last) Since(now time.Time) *time.Time {
	d := l.Duration()
	if d == nil {
		return nil
	}
	t := now.Add(-*d)
	return &t
}

// ParseLast parses a lookback period expression. See Last.
func ParseLast(v string) (time.Duration, error) {
	// units are case insensitive.
	expr := strings.ToLower(strings.TrimSpace(v))
	unit := time.Minute
	switch {
	case strings.HasSuffix(expr, "m"):
		expr = strings.TrimSuffix(expr, "m")
	case strings.HasSuffix(expr, "h"):
		expr, unit = strings.TrimSuffix(expr, "h"), time.Hour
	case strings.HasSuffix(expr, "d"):
		expr, unit = strings.TrimSuffix(expr, "d"), 24*time.Hour
	}

	n, err := strconv.ParseUint(expr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(`period should be like "30m", "3h" or "2d": %q`, v)
	}
	return time.Duration(n) * unit, nil
}
