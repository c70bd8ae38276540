package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	xe "github.com/opst/savethat/pkg/errors"
	"github.com/opst/savethat/pkg/utils/retry"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"golang.org/x/sync/errgroup"
)

// Progress receives progress of transfers.
//
// Methods can be called concurrently.
type Progress interface {
	// Planned is called once before transfers start, with the number and the total size of files to be transferred.
	Planned(files int, bytes int64)

	// Transferred is called when a file has been transferred.
	Transferred(key string, bytes int64)
}

type nopProgress struct{}

func (nopProgress) Planned(int, int64)        {}
func (nopProgress) Transferred(string, int64) {}

// RemoteList returns objects in the remote whose keys start with prefix, sorted by key.
func (s *Storage) RemoteList(ctx context.Context, prefix string) ([]Entry, error) {
	if s.remote == nil {
		return nil, ErrNoRemote
	}

	entries := []Entry{}
	iter := s.remote.List(&blob.ListOptions{Prefix: strings.TrimPrefix(prefix, "/")})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xe.Wrap(err)
		}
		if obj.IsDir {
			continue
		}
		entries = append(entries, Entry{Key: obj.Key, Size: obj.Size, ModTime: obj.ModTime})
	}
	return entries, nil
}

type transfer struct {
	key  string
	size int64
}

// Upload mirrors the local run directory of key to the remote.
//
// Files missing in the remote, of different size, or newer than the remote copy are uploaded.
// When the remote is not configured, it does nothing.
func (s *Storage) Upload(ctx context.Context, key string, progress Progress) error {
	k, err := checkKey(key)
	if err != nil {
		return err
	}
	if info, err := os.Stat(s.Path(k)); err != nil {
		return xe.WrapWithNote(k, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, k)
	}
	if s.remote == nil {
		s.logger.Debug("remote is not configured. skip uploading", zap.String("key", k))
		return nil
	}
	if progress == nil {
		progress = nopProgress{}
	}

	local, err := s.LocalList(k + "/")
	if err != nil {
		return err
	}
	remote, err := s.RemoteList(ctx, k+"/")
	if err != nil {
		return err
	}

	todo := outdated(local, remote)
	plan(progress, todo)
	s.logger.Debug("uploading", zap.String("key", k), zap.Int("files", len(todo)))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)
	for _, t := range todo {
		eg.Go(func() error {
			if err := s.uploadFile(ectx, t.key); err != nil {
				return err
			}
			progress.Transferred(t.key, t.size)
			return nil
		})
	}
	return eg.Wait()
}

func (s *Storage) uploadFile(ctx context.Context, key string) error {
	return s.retry(ctx, func() error {
		f, err := os.Open(s.Path(key))
		if err != nil {
			return xe.WrapWithNote(key, err)
		}
		defer f.Close()

		opts := &blob.WriterOptions{ContentType: contentType(key)}
		if err := s.put(ctx, key, f, opts); err != nil {
			return transient(ctx, xe.WrapWithNote(key, err))
		}
		return nil
	})
}

// contentType guesses the media type of key from its extension.
func contentType(key string) string {
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// retry calls f again when it fails with a transient error of the remote.
func (s *Storage) retry(ctx context.Context, f func() error) error {
	return retry.Do(ctx, s.attempts, retry.ExponentialBackoff(s.backoff, 2), f)
}

// transient marks err to be retried, if it is a temporary failure of the remote.
func transient(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	switch gcerrors.Code(err) {
	case gcerrors.Internal, gcerrors.Unknown, gcerrors.DeadlineExceeded, gcerrors.ResourceExhausted:
		return fmt.Errorf("%w: %w", retry.ErrRetry, err)
	}
	return err
}

// Download mirrors the remote copy of key to the local, and returns the local path.
//
// key can be a run directory or a file.
// Files missing locally, of different size, or newer than the local copy are downloaded.
func (s *Storage) Download(ctx context.Context, key string, progress Progress) (string, error) {
	k, err := checkKey(key)
	if err != nil {
		return "", err
	}
	if s.remote == nil {
		return "", ErrNoRemote
	}
	if progress == nil {
		progress = nopProgress{}
	}

	remote, err := s.RemoteList(ctx, k+"/")
	if err != nil {
		return "", err
	}
	if len(remote) == 0 {
		// key may be a file.
		if ok, err := s.remote.Exists(ctx, k); err != nil {
			return "", xe.Wrap(err)
		} else if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, k)
		}
		attr, err := s.remote.Attributes(ctx, k)
		if err != nil {
			return "", xe.Wrap(err)
		}
		remote = []Entry{{Key: k, Size: attr.Size, ModTime: attr.ModTime}}
	}

	local, err := s.LocalList(k)
	if err != nil {
		return "", err
	}

	todo := outdated(remote, local)
	plan(progress, todo)
	s.logger.Debug("downloading", zap.String("key", k), zap.Int("files", len(todo)))

	modtimes := map[string]time.Time{}
	for _, e := range remote {
		modtimes[e.Key] = e.ModTime
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)
	for _, t := range todo {
		eg.Go(func() error {
			if err := s.downloadFile(ectx, t.key, modtimes[t.key]); err != nil {
				return err
			}
			progress.Transferred(t.key, t.size)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}
	return s.Path(k), nil
}

// DownloadFile downloads a single file of key from the remote, and returns the local path.
func (s *Storage) DownloadFile(ctx context.Context, key string) (string, error) {
	k, err := checkKey(key)
	if err != nil {
		return "", err
	}
	if s.remote == nil {
		return "", ErrNoRemote
	}
	attr, err := s.remote.Attributes(ctx, k)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, k)
	} else if err != nil {
		return "", xe.Wrap(err)
	}
	if err := s.downloadFile(ctx, k, attr.ModTime); err != nil {
		return "", err
	}
	return s.Path(k), nil
}

// downloadFile writes into a temporary file and renames it,
// not to leave a broken file on failure.
func (s *Storage) downloadFile(ctx context.Context, key string, modtime time.Time) error {
	dest := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return xe.Wrap(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return xe.Wrap(err)
	}
	defer os.Remove(tmp.Name())

	err = s.retry(ctx, func() error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return xe.Wrap(err)
		}
		if err := tmp.Truncate(0); err != nil {
			return xe.Wrap(err)
		}
		if err := s.remote.Download(ctx, key, tmp, nil); err != nil {
			return transient(ctx, xe.WrapWithNote(key, err))
		}
		return nil
	})
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = xe.Wrap(cerr)
	}
	if err != nil {
		return err
	}
	if !modtime.IsZero() {
		// local copy is as new as the remote one. It prevents uploading it back.
		if err := os.Chtimes(tmp.Name(), modtime, modtime); err != nil {
			return xe.Wrap(err)
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (s *Storage) removeRemote(ctx context.Context, key string) error {
	objects, err := s.RemoteList(ctx, key+"/")
	if err != nil {
		return err
	}
	if ok, err := s.remote.Exists(ctx, key); err != nil {
		return xe.Wrap(err)
	} else if ok {
		objects = append(objects, Entry{Key: key})
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)
	for _, o := range objects {
		eg.Go(func() error {
			err := s.remote.Delete(ectx, o.Key)
			if gcerrors.Code(err) == gcerrors.NotFound {
				return nil
			}
			return xe.WrapWithNote(o.Key, err)
		})
	}
	return eg.Wait()
}

// outdated returns files in src which should be copied to dst:
// missing in dst, of different size, or newer than dst.
func outdated(src []Entry, dst []Entry) []transfer {
	byKey := make(map[string]Entry, len(dst))
	for _, e := range dst {
		byKey[e.Key] = e
	}

	todo := []transfer{}
	for _, e := range src {
		d, ok := byKey[e.Key]
		if ok && d.Size == e.Size && !e.ModTime.After(d.ModTime) {
			continue
		}
		todo = append(todo, transfer{key: e.Key, size: e.Size})
	}
	return todo
}

func plan(progress Progress, todo []transfer) {
	total := int64(0)
	for _, t := range todo {
		total += t.size
	}
	progress.Planned(len(todo), total)
}
