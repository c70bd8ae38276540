package domain

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/opst/savethat/pkg/utils/rfctime"
)

// Files in a run directory.
const (
	// arguments of the run, with NodeNameKey and NodePackageKey.
	ArgsFile = "args.json"

	// node metadata: key, name, package and environment.
	NodeFile = "node.json"

	// reproducibility snapshot.
	ReproFile = "reproducible.json"

	// result of the run. Present only when the run has completed.
	ResultFile = "results.json"

	// run log, human readable.
	LogFile = "output.log"

	// run log, one JSON object per line.
	JSONLogFile = "output.jsonl"
)

// Keys added into ArgsFile beside arguments.
const (
	NodeNameKey    = "__node__"
	NodePackageKey = "__package__"
)

var ErrInvalidKey = errors.New("invalid run key")

// NewKey returns a run key for a node named name, created at now.
//
// The key is `prefix + name + "_" + timestamp`, where timestamp is now in UTC
// at second resolution with ':' replaced by '-'.
// prefix is prepended verbatim; it may contain "/" to nest runs in subdirectories.
func NewKey(prefix string, name string, now time.Time) string {
	return prefix + name + "_" + rfctime.FormatFilenameSafe(now)
}

// SplitKey splits the base name of key into node name and timestamp part.
func SplitKey(key string) (name string, timestamp string, err error) {
	base := path.Base(strings.TrimSuffix(key, "/"))
	i := strings.LastIndex(base, "_")
	if i <= 0 || i == len(base)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return base[:i], base[i+1:], nil
}

// KeyTime returns the creation time of the run embedded in key.
func KeyTime(key string) (time.Time, error) {
	_, ts, err := SplitKey(key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := rfctime.ParseLoose(ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrInvalidKey, key, err)
	}
	return t, nil
}

// KeyNode returns the node name embedded in key.
func KeyNode(key string) (string, error) {
	name, _, err := SplitKey(key)
	return name, err
}
