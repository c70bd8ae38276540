// Package storage holds runs in a local directory, mirrored to a remote bucket optionally.
//
// Keys are slash separated paths relative to the local directory (and to the remote prefix).
// A key names a run directory, or a file in it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	xe "github.com/opst/savethat/pkg/errors"
	spath "github.com/opst/savethat/pkg/utils/path"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

var (
	// the operation needs the remote, but no remote is configured.
	ErrNoRemote = errors.New("remote storage is not configured")

	// removing the remote copy while keeping the local copy is not allowed.
	ErrRemoteOnly = errors.New("removing remote copy only is not allowed")

	ErrInvalidKey   = errors.New("invalid key")
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFound is also fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("%w in storage", fs.ErrNotExist)
)

// DefaultParallelism is the number of files transferred at once.
const DefaultParallelism = 10

// DefaultAttempts is the number of tries of each file transfer, against transient failures of the remote.
const DefaultAttempts = 3

// DefaultBackoff is the wait before the first retry. It doubles for each retry.
const DefaultBackoff = 500 * time.Millisecond

// Entry is a file in the storage.
type Entry struct {
	// slash separated path from the root of the storage.
	Key     string
	Size    int64
	ModTime time.Time
}

type Storage struct {
	local       string
	remote      *blob.Bucket
	put         func(ctx context.Context, key string, r io.Reader, opts *blob.WriterOptions) error
	logger      *zap.Logger
	parallelism int
	attempts    int
	backoff     time.Duration
}

type Option func(*Storage)

// WithRemote sets the remote mirror. Storage closes the bucket on Close.
func WithRemote(bucket *blob.Bucket) Option {
	return func(s *Storage) {
		s.remote = bucket
		s.put = bucket.Upload
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// WithParallelism sets the number of files transferred at once. Values less than 1 are ignored.
func WithParallelism(n int) Option {
	return func(s *Storage) {
		if 0 < n {
			s.parallelism = n
		}
	}
}

// WithRetry sets how many times each file transfer is tried, and the wait before the first retry.
// attempts less than 1 is ignored.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Storage) {
		if 0 < attempts {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

// New returns Storage rooted at localPath. The directory is created if missing.
func New(localPath string, options ...Option) (*Storage, error) {
	root, err := spath.Resolve(localPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, xe.Wrap(err)
	}

	s := &Storage{
		local:       root,
		logger:      zap.NewNop(),
		parallelism: DefaultParallelism,
		attempts:    DefaultAttempts,
		backoff:     DefaultBackoff,
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// LocalPath returns the absolute path of the local root.
func (s *Storage) LocalPath() string {
	return s.local
}

// HasRemote reports whether the remote mirror is configured.
func (s *Storage) HasRemote() bool {
	return s.remote != nil
}

func (s *Storage) Close() error {
	if s.remote == nil {
		return nil
	}
	return s.remote.Close()
}

func checkKey(key string) (string, error) {
	k := strings.Trim(filepath.ToSlash(key), "/")
	if k == "" || !filepath.IsLocal(filepath.FromSlash(k)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}

// Path returns the local path for key.
func (s *Storage) Path(key string) string {
	return filepath.Join(s.local, filepath.FromSlash(key))
}

// Create creates (or truncates) a local file for key, with its parent directories.
func (s *Storage) Create(key string) (*os.File, error) {
	k, err := checkKey(key)
	if err != nil {
		return nil, err
	}
	p := s.Path(k)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, xe.Wrap(err)
	}
	return os.Create(p)
}

// Open opens a local file for key.
//
// When the file is missing locally and the remote is configured, it is downloaded first.
func (s *Storage) Open(ctx context.Context, key string) (*os.File, error) {
	k, err := checkKey(key)
	if err != nil {
		return nil, err
	}
	p := s.Path(k)
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) && s.remote != nil {
		if _, err := s.DownloadFile(ctx, k); err != nil {
			return nil, err
		}
	}
	return os.Open(p)
}

// LocalList returns files in the local directory whose keys start with prefix, sorted by key.
//
// prefix can be a partial key, like "FitOLS_2024-03".
func (s *Storage) LocalList(prefix string) ([]Entry, error) {
	prefix = strings.TrimPrefix(filepath.ToSlash(prefix), "/")
	entries := []Entry{}
	err := filepath.WalkDir(s.local, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.local, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if !strings.HasPrefix(rel+"/", prefix) && !strings.HasPrefix(prefix, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Key: rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return entries, nil
}

// Remove removes the run (or file) of key.
//
// With local, the local copy is removed. With remote, the remote copy is removed.
// remote without local is refused with ErrRemoteOnly.
// When the remote is not configured, remote is ignored.
func (s *Storage) Remove(ctx context.Context, key string, local, remote bool) error {
	if remote && !local {
		return fmt.Errorf("%w: %s", ErrRemoteOnly, key)
	}
	k, err := checkKey(key)
	if err != nil {
		return err
	}

	if remote {
		if s.remote == nil {
			s.logger.Debug("remote is not configured. skip removing remote copy", zap.String("key", k))
		} else if err := s.removeRemote(ctx, k); err != nil {
			return err
		}
	}
	if local {
		if err := os.RemoveAll(s.Path(k)); err != nil {
			return xe.WrapWithNote(k, err)
		}
	}
	return nil
}
