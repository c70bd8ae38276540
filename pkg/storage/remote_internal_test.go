package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// flaky wraps put, failing the first n calls with failure.
type flaky struct {
	mu      sync.Mutex
	n       int
	failure error
	calls   int
	put     func(ctx context.Context, key string, r io.Reader, opts *blob.WriterOptions) error
}

func (f *flaky) Upload(ctx context.Context, key string, r io.Reader, opts *blob.WriterOptions) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.n
	f.mu.Unlock()
	if fail {
		return f.failure
	}
	return f.put(ctx, key, r, opts)
}

func TestUploadFileRetry(t *testing.T) {
	const key = "Fit_2024-03-01T12-30-00/args.json"

	type When struct {
		failures int
		failure  error
	}
	type Then struct {
		calls    int
		uploaded bool
		code     gcerrors.ErrorCode
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			bucket := memblob.OpenBucket(nil)
			s, err := New(t.TempDir(), WithRemote(bucket), WithRetry(3, time.Millisecond))
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()

			f := &flaky{n: when.failures, failure: when.failure, put: s.put}
			s.put = f.Upload

			dest := s.Path(key)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(dest, []byte(`{"a": 1}`), 0o644); err != nil {
				t.Fatal(err)
			}

			err = s.uploadFile(ctx, key)
			if then.uploaded {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if got := gcerrors.Code(err); got != then.code {
				t.Errorf("unexpected error code: %v (err = %v)", got, err)
			}
			if f.calls != then.calls {
				t.Errorf("unexpected calls: %d", f.calls)
			}

			exists, err := bucket.Exists(ctx, key)
			if err != nil {
				t.Fatal(err)
			}
			if exists != then.uploaded {
				t.Errorf("object exists = %v", exists)
			}
		}
	}

	t.Run("transient failure is retried", theory(
		When{failures: 1, failure: errors.New("connection reset")},
		Then{calls: 2, uploaded: true},
	))

	t.Run("gives up after attempts are exhausted", theory(
		When{failures: 3, failure: errors.New("connection reset")},
		Then{calls: 3, code: gcerrors.Unknown},
	))

	t.Run("not found is not retried", theory(
		When{failures: 1, failure: blobError(t, gcerrors.NotFound)},
		Then{calls: 1, code: gcerrors.NotFound},
	))

	t.Run("invalid argument is not retried", theory(
		When{failures: 1, failure: blobError(t, gcerrors.InvalidArgument)},
		Then{calls: 1, code: gcerrors.InvalidArgument},
	))
}

// blobError returns an error with code, as returned by the bucket.
func blobError(t *testing.T, code gcerrors.ErrorCode) error {
	t.Helper()
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	var err error
	switch code {
	case gcerrors.NotFound:
		_, err = bucket.ReadAll(ctx, "missing")
	case gcerrors.InvalidArgument:
		_, err = bucket.ReadAll(ctx, "invalid\xffkey")
	}
	if gcerrors.Code(err) != code {
		t.Fatalf("unexpected error: %v", err)
	}
	return err
}
