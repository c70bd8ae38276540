// Package node defines experiment programs (nodes) and runs them with bookkeeping.
//
// A node is a type implementing Runner. Its arguments are a struct (see package args),
// and its result is anything serializable as JSON.
//
//	type FitOLS struct{}
//
//	type FitOLSArgs struct {
//		Data string `json:"data" flag:",required"`
//	}
//
//	func (FitOLS) Run(ctx context.Context, n *node.Node[FitOLSArgs, Fit]) (Fit, error) {
//		n.Logger.Info("fitting", zap.String("data", n.Args.Data))
//		...
//	}
//
// Each execution is a run: it gets a fresh key, and its arguments, logs,
// reproducibility snapshot and result are recorded in the run directory.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/opst/savethat/pkg/args"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/logging"
	"github.com/opst/savethat/pkg/repro"
	"github.com/opst/savethat/pkg/storage"
	"go.uber.org/zap"
)

var (
	// the run directory exists already. Runs are never executed twice.
	ErrRunExists = errors.New("run exists already")

	ErrUnnamedNode = errors.New("node type should be named")
)

// Runner is the body of a node.
type Runner[A, R any] interface {
	Run(ctx context.Context, n *Node[A, R]) (R, error)
}

// Documented is implemented by runners describing themselves.
//
// The first line is shown in the node list.
type Documented interface {
	Doc() string
}

// Initializer is implemented by runners which prepare something for each Node, on Create.
type Initializer[A, R any] interface {
	Setup(n *Node[A, R]) error
}

// Environment is what nodes are created with.
type Environment struct {
	Storage *storage.Storage

	// free-form settings of the profile, available as Node.Env.
	Env map[string]string

	// base logger. Run logs are written here too. nil means discarding.
	Logger *zap.Logger

	// base reproducibility snapshot, copied for each node.
	// When nil, it is taken from ProjectDir.
	Repro      *repro.Snapshot
	ProjectDir string

	// prepended to keys verbatim.
	KeyPrefix string

	// clock for keys. nil means time.Now.
	Now func() time.Time
}

// Node is a node with its arguments, ready to run once.
type Node[A, R any] struct {
	Key     string
	Name    string
	Package string

	// arguments. Treat it as read only.
	Args A

	Env     map[string]string
	Storage *storage.Storage

	// While running, this also writes into the run log files.
	Logger *zap.Logger

	Repro *repro.Snapshot

	runner   Runner[A, R]
	preHooks hooks[func(*Node[A, R]) error]
	runHooks hooks[func(*Node[A, R], R) error]
}

// NameOf returns the type name and the package path of a runner.
func NameOf(runner any) (name string, pkg string, err error) {
	t := reflect.TypeOf(runner)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "", "", fmt.Errorf("%w: %T", ErrUnnamedNode, runner)
	}
	return t.Name(), t.PkgPath(), nil
}

// Create makes a Node to run runner with a.
func Create[A, R any](runner Runner[A, R], a A, env Environment) (*Node[A, R], error) {
	if env.Storage == nil {
		return nil, errors.New("storage is not given")
	}
	name, pkg, err := NameOf(runner)
	if err != nil {
		return nil, err
	}
	if err := args.Validate(a); err != nil {
		return nil, err
	}

	now := time.Now
	if env.Now != nil {
		now = env.Now
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	snapshot := env.Repro
	if snapshot == nil {
		snapshot = repro.Shared(context.Background(), env.ProjectDir)
	}
	snapshot = snapshot.Clone()
	snapshot.AddData("node.package", pkg)
	snapshot.AddData("node.name", name)

	key := domain.NewKey(env.KeyPrefix, name, now())
	n := &Node[A, R]{
		Key:     key,
		Name:    name,
		Package: pkg,
		Args:    a,
		Env:     env.Env,
		Storage: env.Storage,
		Logger:  logger.With(zap.String("key", key)),
		Repro:   snapshot,
		runner:  runner,
	}

	if init, ok := runner.(Initializer[A, R]); ok {
		if err := init.Setup(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// FullName is "package.Name".
func (n *Node[A, R]) FullName() string {
	return n.Package + "." + n.Name
}

// OutputDir is the local run directory.
func (n *Node[A, R]) OutputDir() string {
	return n.Storage.Path(n.Key)
}

// RegisterPreRunHook registers a hook called before the runner, in the registration order.
//
// An error from hooks stops the run.
func (n *Node[A, R]) RegisterPreRunHook(hook func(*Node[A, R]) error) HookHandle {
	return n.preHooks.add(hook)
}

// RegisterRunHook registers a hook called with the result after the runner succeeds,
// in the registration order.
func (n *Node[A, R]) RegisterRunHook(hook func(*Node[A, R], R) error) HookHandle {
	return n.runHooks.add(hook)
}

type nodeInfo struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Package string `json:"package"`
}

// Run executes the node and records the run.
//
// The run directory must not exist: run a node only once, and create a new Node for another run.
// The run directory is uploaded before the runner starts and again when Run returns.
func (n *Node[A, R]) Run(ctx context.Context) (result R, err error) {
	dir := n.OutputDir()
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return result, err
	}
	if err := os.Mkdir(dir, 0o755); errors.Is(err, fs.ErrExist) {
		return result, fmt.Errorf("%w: %s", ErrRunExists, n.Key)
	} else if err != nil {
		return result, err
	}

	base := n.Logger
	logger, closeLog, err := logging.ForRun(base, dir, n.Key)
	if err != nil {
		return result, err
	}
	n.Logger = logger

	defer func() {
		if err != nil {
			n.Logger.Error("run failed", zap.Error(err))
		}
		n.Logger = base
		err = errors.Join(err, closeLog())

		if uerr := n.Storage.Upload(context.WithoutCancel(ctx), n.Key, nil); uerr != nil {
			err = errors.Join(err, fmt.Errorf("uploading %s: %w", n.Key, uerr))
		}
	}()

	for _, h := range n.preHooks.list() {
		if err := h(n); err != nil {
			return result, err
		}
	}

	n.Logger.Info("run node", zap.String("node", n.FullName()), zap.String("output_dir", dir))
	if err := n.record(dir); err != nil {
		return result, err
	}
	if err := n.Storage.Upload(ctx, n.Key, nil); err != nil {
		n.Logger.Warn("uploading failed. retry after run", zap.Error(err))
	}

	result, err = n.runner.Run(ctx, n)
	if err != nil {
		return result, err
	}

	resultFile := filepath.Join(dir, domain.ResultFile)
	n.Logger.Info("saving result", zap.String("path", resultFile))
	if err := writeJSON(resultFile, result); err != nil {
		return result, fmt.Errorf("saving result: %w", err)
	}

	for _, h := range n.runHooks.list() {
		if err := h(n, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (n *Node[A, R]) record(dir string) error {
	argsFile := filepath.Join(dir, domain.ArgsFile)
	n.Logger.Info("saving arguments", zap.String("path", argsFile))
	if err := args.Save(argsFile, n.Args, args.Info{Node: n.Name, Package: n.Package}); err != nil {
		return fmt.Errorf("saving arguments: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, domain.NodeFile), nodeInfo{Key: n.Key, Name: n.Name, Package: n.Package}); err != nil {
		return fmt.Errorf("saving node info: %w", err)
	}
	if err := n.Repro.Save(filepath.Join(dir, domain.ReproFile)); err != nil {
		return fmt.Errorf("saving reproducibility snapshot: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}
