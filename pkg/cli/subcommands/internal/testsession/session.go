package testsession

import (
	"context"
	"path"
	"testing"

	"github.com/opst/savethat/pkg/cli/config/profiles"
	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/logging"
	"github.com/opst/savethat/pkg/storage"
	"github.com/opst/savethat/pkg/utils/try"
	"gocloud.dev/blob/memblob"
)

// New returns a session on a temporary directory.
// When remote is true, the storage is mirrored to an in-memory bucket.
//
// The session is closed after the test.
func New(t *testing.T, remote bool) common.Session {
	t.Helper()

	local := t.TempDir()
	opts := []storage.Option{}
	prof := profiles.NoSyncing(local)
	if remote {
		opts = append(opts, storage.WithRemote(memblob.OpenBucket(nil)))
		prof = &profiles.Profile{LocalPath: local, Remote: &profiles.Remote{URL: "mem://"}}
	}
	st := try.To(storage.New(local, opts...)).OrFatal(t)

	s := common.Session{
		Project:    "test",
		ProjectDir: t.TempDir(),
		Profile:    prof,
		Storage:    st,
		Logger:     logging.Nop(),
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Seed creates a run of key in the local directory with extra files, and uploads it when the storage has remote.
//
// When completed is true, the run has a result.
func Seed(t *testing.T, s common.Session, key string, completed bool, files ...string) {
	t.Helper()

	write := func(name string, content string) {
		f := try.To(s.Storage.Create(path.Join(key, name))).OrFatal(t)
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			t.Fatal(err)
		}
	}
	write(domain.ArgsFile, `{"__node__": "Fit"}`)
	if completed {
		write(domain.ResultFile, `{"rmse": 0.5}`)
	}
	for _, f := range files {
		write(f, "content of "+f)
	}

	if s.Storage.HasRemote() {
		if err := s.Storage.Upload(context.Background(), key, nil); err != nil {
			t.Fatal(err)
		}
	}
}
