package rfctime

import (
	"fmt"
	"strings"
	"time"
)

// Format of timestamps embedded in file names.
//
// It is RFC3339 date-time at second resolution, in UTC, with ':' replaced by '-'.
const FilenameSafeFormat = "2006-01-02T15-04-05"

// FormatFilenameSafe stringifies t in FilenameSafeFormat.
func FormatFilenameSafe(t time.Time) string {
	return t.UTC().Format(FilenameSafeFormat)
}

var withZone = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

var withoutZone = []string{
	FilenameSafeFormat,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15",
	time.DateOnly,
}

// ParseLoose parses s as a date-time, accepting some variants of RFC3339.
//
// Accepted are: full RFC3339 (offset or "Z"), date and time separated by a space,
// time truncated to minutes or hours, date only, and FilenameSafeFormat.
// When s has no time offset, it is taken as UTC.
func ParseLoose(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, f := range withZone {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}

	for _, f := range withoutZone {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("failed to parse %q as date-time", s)
}
