package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/opst/savethat/pkg/args"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrAmbiguousNode  = errors.New("node name is ambiguous")
	ErrDuplicatedNode = errors.New("node is registered already")
)

// Entry is a registered node, with its argument types erased.
type Entry interface {
	Name() string
	Package() string

	// "package.Name"
	FullName() string

	// description of the node. Empty if the runner is not Documented.
	Doc() string

	// Usage describes flags of the node.
	Usage() (string, error)

	// FromArgv creates an Instance with arguments parsed from command line flags.
	//
	// Usage is written to out on --help, and then args.ErrHelp is returned.
	FromArgv(argv []string, out io.Writer, env Environment) (Instance, error)

	// FromMap creates an Instance with arguments decoded from a dictionary.
	FromMap(m map[string]any, env Environment) (Instance, error)

	// FromFile creates an Instance with arguments loaded from YAML or JSON file.
	FromFile(path string, env Environment) (Instance, error)
}

// Instance is a Node, with its types erased.
type Instance interface {
	Key() string
	OutputDir() string

	// Execute runs the node. See Node.Run.
	Execute(ctx context.Context) (any, error)
}

type entry[A, R any] struct {
	name     string
	pkg      string
	runner   Runner[A, R]
	defaults A
}

func (e *entry[A, R]) Name() string     { return e.name }
func (e *entry[A, R]) Package() string  { return e.pkg }
func (e *entry[A, R]) FullName() string { return e.pkg + "." + e.name }

func (e *entry[A, R]) Doc() string {
	if d, ok := e.runner.(Documented); ok {
		return d.Doc()
	}
	return ""
}

func (e *entry[A, R]) Usage() (string, error) {
	return args.Usage(e.name, e.defaults)
}

func (e *entry[A, R]) FromArgv(argv []string, out io.Writer, env Environment) (Instance, error) {
	a, err := args.Parse(e.name, e.defaults, argv, out)
	if err != nil {
		return nil, err
	}
	return e.instance(a, env)
}

func (e *entry[A, R]) FromMap(m map[string]any, env Environment) (Instance, error) {
	a, err := args.FromMap(e.defaults, m)
	if err != nil {
		return nil, err
	}
	return e.instance(a, env)
}

func (e *entry[A, R]) FromFile(path string, env Environment) (Instance, error) {
	a, err := args.Load(path, e.defaults)
	if err != nil {
		return nil, err
	}
	return e.instance(a, env)
}

func (e *entry[A, R]) instance(a A, env Environment) (Instance, error) {
	n, err := Create(e.runner, a, env)
	if err != nil {
		return nil, err
	}
	return instance[A, R]{n}, nil
}

type instance[A, R any] struct {
	n *Node[A, R]
}

func (i instance[A, R]) Key() string       { return i.n.Key }
func (i instance[A, R]) OutputDir() string { return i.n.OutputDir() }

func (i instance[A, R]) Execute(ctx context.Context) (any, error) {
	return i.n.Run(ctx)
}

// Registry is a set of nodes runnable from the command line.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// Register adds runner to reg. Arguments for runner start from defaults.
func Register[A, R any](reg *Registry, runner Runner[A, R], defaults A) error {
	name, pkg, err := NameOf(runner)
	if err != nil {
		return err
	}
	if _, err := args.Bind(defaults); err != nil {
		return fmt.Errorf("%s.%s: %w", pkg, name, err)
	}

	e := &entry[A, R]{name: name, pkg: pkg, runner: runner, defaults: defaults}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.entries[e.FullName()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatedNode, e.FullName())
	}
	reg.entries[e.FullName()] = e
	return nil
}

// MustRegister is Register, but panics on error.
func MustRegister[A, R any](reg *Registry, runner Runner[A, R], defaults A) {
	if err := Register(reg, runner, defaults); err != nil {
		panic(err)
	}
}

// All returns registered nodes sorted by package and name.
func (reg *Registry) All() []Entry {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	ret := make([]Entry, 0, len(reg.entries))
	for _, e := range reg.entries {
		ret = append(ret, e)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Package() != ret[j].Package() {
			return ret[i].Package() < ret[j].Package()
		}
		return ret[i].Name() < ret[j].Name()
	})
	return ret
}

// Lookup finds a node by its full name ("package.Name") or its name.
//
// A name shared by nodes in different packages is ambiguous.
func (reg *Registry) Lookup(name string) (Entry, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if e, ok := reg.entries[name]; ok {
		return e, nil
	}

	found := []Entry{}
	for _, e := range reg.entries {
		if e.Name() == name {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	case 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, e := range found {
			names = append(names, e.FullName())
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %s (candidates: %s)", ErrAmbiguousNode, name, strings.Join(names, ", "))
	}
}
