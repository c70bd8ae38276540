package node_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opst/savethat/pkg/args"
	"github.com/opst/savethat/pkg/cmp"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/node"
	"github.com/opst/savethat/pkg/repro"
	"github.com/opst/savethat/pkg/storage"
	"github.com/opst/savethat/pkg/utils/try"
	"go.uber.org/zap"
	"gocloud.dev/blob/memblob"
)

type Fit struct {
	fail   error
	called *int
}

type FitArgs struct {
	Data   string `json:"data" flag:",required"`
	Epochs int    `json:"epochs"`
}

func (a FitArgs) Validate() error {
	if a.Epochs < 0 {
		return errors.New("negative epochs")
	}
	return nil
}

type FitResult struct {
	RMSE float64 `json:"rmse"`
}

func (Fit) Doc() string {
	return "Fit a line.\n\nIt uses least squares."
}

func (f Fit) Run(ctx context.Context, n *node.Node[FitArgs, FitResult]) (FitResult, error) {
	if f.called != nil {
		*f.called += 1
	}
	n.Logger.Info("fitting", zap.String("data", n.Args.Data))
	if err := os.WriteFile(filepath.Join(n.OutputDir(), "model.txt"), []byte("y = x"), 0o644); err != nil {
		return FitResult{}, err
	}
	if f.fail != nil {
		return FitResult{}, f.fail
	}
	return FitResult{RMSE: 0.5}, nil
}

var now = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func newEnv(t *testing.T) node.Environment {
	t.Helper()
	st := try.To(storage.New(t.TempDir(), storage.WithRemote(memblob.OpenBucket(nil)))).OrFatal(t)
	t.Cleanup(func() { st.Close() })
	return node.Environment{
		Storage: st,
		Env:     map[string]string{"dataset": "toy"},
		Repro:   repro.Collect(context.Background(), ""),
		Now:     func() time.Time { return now },
	}
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	m := map[string]any{}
	if err := json.Unmarshal(try.To(os.ReadFile(path)).OrFatal(t), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreate(t *testing.T) {
	t.Run("key is made of the node name and the time", func(t *testing.T) {
		n := try.To(node.Create[FitArgs, FitResult](Fit{}, FitArgs{Data: "d.csv"}, newEnv(t))).OrFatal(t)
		if n.Key != "Fit_2024-03-01T12-30-00" {
			t.Errorf("unexpected key: %s", n.Key)
		}
		if n.Name != "Fit" || n.Package != "github.com/opst/savethat/pkg/node_test" {
			t.Errorf("unexpected identity: %s, %s", n.Name, n.Package)
		}
		if !cmp.MapEq(n.Env, map[string]string{"dataset": "toy"}) {
			t.Errorf("unexpected env: %v", n.Env)
		}
		if n.Repro.Data["node.name"] != "Fit" {
			t.Errorf("snapshot does not have node name: %v", n.Repro.Data)
		}
	})

	t.Run("key prefix is prepended", func(t *testing.T) {
		env := newEnv(t)
		env.KeyPrefix = "sweep/"
		n := try.To(node.Create[FitArgs, FitResult](Fit{}, FitArgs{}, env)).OrFatal(t)
		if n.Key != "sweep/Fit_2024-03-01T12-30-00" {
			t.Errorf("unexpected key: %s", n.Key)
		}
	})

	t.Run("invalid args are rejected", func(t *testing.T) {
		_, err := node.Create[FitArgs, FitResult](Fit{}, FitArgs{Epochs: -1}, newEnv(t))
		if !errors.Is(err, args.ErrInvalidArgs) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("when the runner succeeds, the run is recorded and uploaded", func(t *testing.T) {
		env := newEnv(t)
		called := 0
		n := try.To(node.Create[FitArgs, FitResult](Fit{called: &called}, FitArgs{Data: "d.csv", Epochs: 3}, env)).OrFatal(t)

		order := []string{}
		n.RegisterPreRunHook(func(*node.Node[FitArgs, FitResult]) error {
			order = append(order, "pre 1")
			return nil
		})
		removed := n.RegisterPreRunHook(func(*node.Node[FitArgs, FitResult]) error {
			order = append(order, "removed")
			return nil
		})
		n.RegisterPreRunHook(func(*node.Node[FitArgs, FitResult]) error {
			order = append(order, "pre 2")
			return nil
		})
		n.RegisterRunHook(func(_ *node.Node[FitArgs, FitResult], r FitResult) error {
			order = append(order, "post")
			if r.RMSE != 0.5 {
				t.Errorf("hook got unexpected result: %+v", r)
			}
			return nil
		})
		removed.Remove()
		removed.Remove()

		result := try.To(n.Run(ctx)).OrFatal(t)
		if result.RMSE != 0.5 || called != 1 {
			t.Errorf("unexpected result: %+v (called %d)", result, called)
		}
		if !cmp.SliceEq(order, []string{"pre 1", "pre 2", "post"}) {
			t.Errorf("unexpected hooks: %v", order)
		}

		dir := n.OutputDir()
		a := readJSON(t, filepath.Join(dir, domain.ArgsFile))
		if a["data"] != "d.csv" || a["epochs"] != float64(3) || a[domain.NodeNameKey] != "Fit" {
			t.Errorf("unexpected args.json: %v", a)
		}
		if info := readJSON(t, filepath.Join(dir, domain.NodeFile)); info["key"] != n.Key || info["name"] != "Fit" {
			t.Errorf("unexpected node.json: %v", info)
		}
		if r := readJSON(t, filepath.Join(dir, domain.ResultFile)); r["rmse"] != 0.5 {
			t.Errorf("unexpected results.json: %v", r)
		}
		if _, err := os.Stat(filepath.Join(dir, domain.ReproFile)); err != nil {
			t.Errorf("reproducible.json is missing: %v", err)
		}
		logs := string(try.To(os.ReadFile(filepath.Join(dir, domain.LogFile))).OrFatal(t))
		if !strings.Contains(logs, "fitting") || !strings.Contains(logs, "run node") {
			t.Errorf("unexpected output.log:\n%s", logs)
		}

		remote := try.To(env.Storage.RemoteList(ctx, n.Key+"/")).OrFatal(t)
		keys := []string{}
		for _, e := range remote {
			keys = append(keys, strings.TrimPrefix(e.Key, n.Key+"/"))
		}
		expected := []string{
			domain.ArgsFile, domain.NodeFile, domain.ReproFile, domain.ResultFile,
			domain.LogFile, domain.JSONLogFile, "model.txt",
		}
		if !cmp.SliceContentEq(keys, expected) {
			t.Errorf("unexpected remote files: (actual, expected) = (%v, %v)", keys, expected)
		}

		t.Run("it cannot run twice", func(t *testing.T) {
			if _, err := n.Run(ctx); !errors.Is(err, node.ErrRunExists) {
				t.Errorf("unexpected error: %v", err)
			}
			if called != 1 {
				t.Errorf("runner is called again")
			}
		})
	})

	t.Run("when the runner fails, the run is recorded without result", func(t *testing.T) {
		env := newEnv(t)
		expectedErr := errors.New("diverged")
		n := try.To(node.Create[FitArgs, FitResult](Fit{fail: expectedErr}, FitArgs{Data: "d.csv"}, env)).OrFatal(t)
		postCalled := false
		n.RegisterRunHook(func(*node.Node[FitArgs, FitResult], FitResult) error {
			postCalled = true
			return nil
		})

		if _, err := n.Run(ctx); !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if postCalled {
			t.Error("run hook is called for failed run")
		}
		if _, err := os.Stat(filepath.Join(n.OutputDir(), domain.ResultFile)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("results.json exists: %v", err)
		}
		logs := string(try.To(os.ReadFile(filepath.Join(n.OutputDir(), domain.LogFile))).OrFatal(t))
		if !strings.Contains(logs, "diverged") {
			t.Errorf("error is not logged:\n%s", logs)
		}

		remote := try.To(env.Storage.RemoteList(ctx, n.Key+"/")).OrFatal(t)
		found := false
		for _, e := range remote {
			if e.Key == n.Key+"/model.txt" {
				found = true
			}
		}
		if !found {
			t.Error("files of failed run are not uploaded")
		}
	})

	t.Run("when a pre-run hook fails, the runner is not called", func(t *testing.T) {
		called := 0
		n := try.To(node.Create[FitArgs, FitResult](Fit{called: &called}, FitArgs{Data: "d.csv"}, newEnv(t))).OrFatal(t)
		expectedErr := errors.New("no GPU")
		n.RegisterPreRunHook(func(*node.Node[FitArgs, FitResult]) error { return expectedErr })

		if _, err := n.Run(ctx); !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if called != 0 {
			t.Error("runner is called")
		}
	})
}

func TestRegistry(t *testing.T) {
	reg := node.NewRegistry()
	if err := node.Register[FitArgs, FitResult](reg, Fit{}, FitArgs{Epochs: 10}); err != nil {
		t.Fatal(err)
	}

	t.Run("same node cannot be registered twice", func(t *testing.T) {
		err := node.Register[FitArgs, FitResult](reg, &Fit{}, FitArgs{})
		if !errors.Is(err, node.ErrDuplicatedNode) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("node can be looked up by name and by full name", func(t *testing.T) {
		for _, name := range []string{"Fit", "github.com/opst/savethat/pkg/node_test.Fit"} {
			e := try.To(reg.Lookup(name)).OrFatal(t)
			if e.Name() != "Fit" || e.Doc() != (Fit{}).Doc() {
				t.Errorf("unexpected entry: %s", e.FullName())
			}
		}
		if _, err := reg.Lookup("Missing"); !errors.Is(err, node.ErrNodeNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("instances are created from command line", func(t *testing.T) {
		e := try.To(reg.Lookup("Fit")).OrFatal(t)
		env := newEnv(t)
		inst := try.To(e.FromArgv([]string{"--", "--data", "d.csv"}, new(bytes.Buffer), env)).OrFatal(t)
		if inst.Key() != "Fit_2024-03-01T12-30-00" {
			t.Errorf("unexpected key: %s", inst.Key())
		}

		got := try.To(inst.Execute(context.Background())).OrFatal(t)
		if r, ok := got.(FitResult); !ok || r.RMSE != 0.5 {
			t.Errorf("unexpected result: %#v", got)
		}
		a := readJSON(t, filepath.Join(inst.OutputDir(), domain.ArgsFile))
		if a["epochs"] != float64(10) {
			t.Errorf("defaults are not used: %v", a)
		}
	})

	t.Run("help is written", func(t *testing.T) {
		e := try.To(reg.Lookup("Fit")).OrFatal(t)
		out := new(bytes.Buffer)
		if _, err := e.FromArgv([]string{"--help"}, out, newEnv(t)); !errors.Is(err, args.ErrHelp) {
			t.Errorf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "--data") {
			t.Errorf("unexpected usage:\n%s", out)
		}
	})

	t.Run("instances are created from dictionary", func(t *testing.T) {
		e := try.To(reg.Lookup("Fit")).OrFatal(t)
		inst := try.To(e.FromMap(map[string]any{"data": "d.csv", "epochs": 2}, newEnv(t))).OrFatal(t)
		try.To(inst.Execute(context.Background())).OrFatal(t)
		a := readJSON(t, filepath.Join(inst.OutputDir(), domain.ArgsFile))
		if a["epochs"] != float64(2) {
			t.Errorf("unexpected args: %v", a)
		}
	})

	t.Run("All lists nodes", func(t *testing.T) {
		all := reg.All()
		if len(all) != 1 || all[0].FullName() != "github.com/opst/savethat/pkg/node_test.Fit" {
			t.Errorf("unexpected entries: %v", all)
		}
	})
}
