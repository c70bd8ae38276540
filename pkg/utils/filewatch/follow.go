package filewatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Follow copies the content of the file at path into w, and keeps copying
// what is appended to the file, like `tail -f`.
//
// # Args
//
// - ctx: Follow returns when ctx is done, with its cause.
//
// - path: file to be followed. It should exist.
//
// - w: destination of the content.
//
// # Returns
//
// - error: nil when the file has been removed or renamed.
// Otherwise, an error from watching, reading or writing, or the cause of ctx.
func Follow(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	// the first copy should be after Add, not to miss writes between them.
	if _, err := io.Copy(w, f); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", path, err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Write):
				if _, err := io.Copy(w, f); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				_, err := io.Copy(w, f)
				return err
			case ev.Has(fsnotify.Chmod):
				// unlinking a file held open is notified as an attribute change.
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					_, err := io.Copy(w, f)
					return err
				}
			}
		}
	}
}
