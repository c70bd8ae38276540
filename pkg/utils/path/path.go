package path

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tilde = "~" + string(filepath.Separator)

// ErrNotFound is returned by FindUp when no directory contains the marker.
var ErrNotFound = errors.New("not found")

// Resolve returns the absolute, cleaned form of pathstring.
// A leading "~/" is expanded to the user's home directory.
func Resolve(pathstring string) (string, error) {
	if pathstring == "~" || strings.HasPrefix(pathstring, tilde) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		pathstring = filepath.Join(home, strings.TrimPrefix(pathstring, "~"))
	}
	return filepath.Abs(pathstring)
}

// FindUp searches start and its ancestors for a directory which contains
// an entry named marker, and returns that directory.
func FindUp(start string, marker string) (string, error) {
	dir, err := Resolve(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s in %s or its parents", ErrNotFound, marker, start)
		}
		dir = parent
	}
}
