package run_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opst/savethat/pkg/cmp"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/opst/savethat/pkg/storage"
	"github.com/opst/savethat/pkg/utils/pointer"
	"github.com/opst/savethat/pkg/utils/try"
	"gocloud.dev/blob/memblob"
)

func writeFile(t *testing.T, s *storage.Storage, key string, content string) {
	t.Helper()
	p := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func keysOf(runs []run.Run) []string {
	keys := make([]string, 0, len(runs))
	for _, r := range runs {
		keys = append(keys, r.Key)
	}
	return keys
}

const (
	fit1   = "Fit_2024-03-01T12-00-00"
	fit2   = "Fit_2024-03-02T12-00-00"
	other3 = "Other_2024-03-03T12-00-00"
	nested = "sweep/Fit_2024-03-04T12-00-00"
	noTime = "Manual_latest"
)

func setup(t *testing.T) *storage.Storage {
	t.Helper()
	s := try.To(storage.New(t.TempDir(), storage.WithRemote(memblob.OpenBucket(nil)))).OrFatal(t)
	t.Cleanup(func() { s.Close() })

	// completed
	writeFile(t, s, fit1+"/"+domain.ArgsFile, `{"epochs": 1, "__node__": "Fit"}`)
	writeFile(t, s, fit1+"/"+domain.NodeFile, `{"name": "Fit"}`)
	writeFile(t, s, fit1+"/"+domain.ResultFile, `{"rmse": 0.5}`)
	writeFile(t, s, fit1+"/plots/loss.csv", "1,2\n")

	// failed
	writeFile(t, s, fit2+"/"+domain.ArgsFile, `{"epochs": 2}`)
	writeFile(t, s, fit2+"/"+domain.LogFile, "boom\n")

	writeFile(t, s, other3+"/"+domain.ArgsFile, `{}`)
	writeFile(t, s, other3+"/"+domain.ResultFile, `{}`)

	writeFile(t, s, nested+"/"+domain.ArgsFile, `{}`)
	writeFile(t, s, nested+"/"+domain.ResultFile, `{}`)

	writeFile(t, s, noTime+"/"+domain.ArgsFile, `{}`)

	// not a run: no args
	writeFile(t, s, "scratch/notes.txt", "hello")
	return s
}

func TestFind(t *testing.T) {
	ctx := context.Background()

	type Then struct {
		keys []string
	}

	theory := func(q run.Query, then Then) func(*testing.T) {
		return func(t *testing.T) {
			testee := run.New(setup(t))
			got := try.To(testee.Find(ctx, q)).OrFatal(t)
			if !cmp.SliceEq(keysOf(got), then.keys) {
				t.Errorf("unexpected runs: (actual, expected) = (%v, %v)", keysOf(got), then.keys)
			}
		}
	}

	t.Run("everything", theory(
		run.Query{},
		Then{keys: []string{fit1, fit2, noTime, other3, nested}},
	))
	t.Run("by prefix", theory(
		run.Query{Prefix: "Fit_"},
		Then{keys: []string{fit1, fit2}},
	))
	t.Run("by nested prefix", theory(
		run.Query{Prefix: "sweep/"},
		Then{keys: []string{nested}},
	))
	t.Run("only completed", theory(
		run.Query{Status: domain.OnlyCompleted},
		Then{keys: []string{fit1, other3, nested}},
	))
	t.Run("only failed", theory(
		run.Query{Status: domain.OnlyFailed},
		Then{keys: []string{fit2, noTime}},
	))
	t.Run("after is inclusive, and runs without time are excluded", theory(
		run.Query{After: pointer.Ref(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))},
		Then{keys: []string{fit2, other3, nested}},
	))
	t.Run("before is inclusive", theory(
		run.Query{Before: pointer.Ref(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))},
		Then{keys: []string{fit1, fit2}},
	))
	t.Run("between, completed", theory(
		run.Query{
			After:  pointer.Ref(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
			Before: pointer.Ref(time.Date(2024, 3, 3, 23, 0, 0, 0, time.UTC)),
			Status: domain.OnlyCompleted,
		},
		Then{keys: []string{fit1, other3}},
	))
	t.Run("remote without uploads finds nothing", theory(
		run.Query{Remote: true},
		Then{keys: []string{}},
	))

	t.Run("runs have their files and node", func(t *testing.T) {
		testee := run.New(setup(t))
		got := try.To(testee.Find(ctx, run.Query{Prefix: fit1})).OrFatal(t)
		if len(got) != 1 {
			t.Fatalf("unexpected runs: %v", keysOf(got))
		}
		r := got[0]
		if r.Node != "Fit" || r.Status != domain.Completed || !r.Time.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected run: %+v", r)
		}
		paths := []string{}
		for _, f := range r.Files {
			paths = append(paths, f.Path)
		}
		expected := []string{domain.ArgsFile, domain.NodeFile, "plots/loss.csv", domain.ResultFile}
		if !cmp.SliceEq(paths, expected) {
			t.Errorf("unexpected files: (actual, expected) = (%v, %v)", paths, expected)
		}
	})

	t.Run("remote listing is used after upload", func(t *testing.T) {
		s := setup(t)
		if err := s.Upload(ctx, fit1, nil); err != nil {
			t.Fatal(err)
		}
		got := try.To(run.New(s).Find(ctx, run.Query{Remote: true})).OrFatal(t)
		if !cmp.SliceEq(keysOf(got), []string{fit1}) {
			t.Errorf("unexpected runs: %v", keysOf(got))
		}
	})

	t.Run("without remote, remote query falls back to local", func(t *testing.T) {
		s := try.To(storage.New(t.TempDir())).OrFatal(t)
		writeFile(t, s, fit1+"/"+domain.ArgsFile, `{}`)
		got := try.To(run.New(s).Find(ctx, run.Query{Remote: true})).OrFatal(t)
		if !cmp.SliceEq(keysOf(got), []string{fit1}) {
			t.Errorf("unexpected runs: %v", keysOf(got))
		}
	})
}

func TestGroup(t *testing.T) {
	t.Run("a file belongs to its nearest run", func(t *testing.T) {
		got := run.Group([]storage.Entry{
			{Key: "outer_2024-01-01/args.json"},
			{Key: "outer_2024-01-01/inner_2024-01-02/args.json"},
			{Key: "outer_2024-01-01/inner_2024-01-02/results.json"},
			{Key: "outer_2024-01-01/log.txt"},
		})
		if len(got) != 2 {
			t.Fatalf("unexpected runs: %v", keysOf(got))
		}
		outer, inner := got[0], got[1]
		if outer.Status != domain.Failed || len(outer.Files) != 2 {
			t.Errorf("unexpected outer run: %+v", outer)
		}
		if inner.Status != domain.Completed || len(inner.Files) != 2 {
			t.Errorf("unexpected inner run: %+v", inner)
		}
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("completed run has args, node info and result", func(t *testing.T) {
		testee := run.New(setup(t))
		got := try.To(testee.Get(ctx, fit1, false)).OrFatal(t)
		if got.Key != fit1 || got.Args["epochs"] != float64(1) || got.NodeInfo["name"] != "Fit" {
			t.Errorf("unexpected detail: %+v", got)
		}
		if string(got.Result) != `{"rmse": 0.5}` {
			t.Errorf("unexpected result: %s", got.Result)
		}
	})

	t.Run("failed run has no result", func(t *testing.T) {
		testee := run.New(setup(t))
		got := try.To(testee.Get(ctx, fit2, false)).OrFatal(t)
		if got.Result != nil || got.NodeInfo != nil {
			t.Errorf("unexpected detail: %+v", got)
		}
	})

	t.Run("remote run is downloaded as needed", func(t *testing.T) {
		s := setup(t)
		if err := s.Upload(ctx, fit1, nil); err != nil {
			t.Fatal(err)
		}
		if err := os.RemoveAll(s.Path(fit1)); err != nil {
			t.Fatal(err)
		}
		got := try.To(run.New(s).Get(ctx, fit1, true)).OrFatal(t)
		if got.Args["epochs"] != float64(1) {
			t.Errorf("unexpected args: %v", got.Args)
		}
	})

	t.Run("partial key is not found", func(t *testing.T) {
		testee := run.New(setup(t))
		if _, err := testee.Get(ctx, "Fit_2024-03", false); !errors.Is(err, run.ErrRunNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
