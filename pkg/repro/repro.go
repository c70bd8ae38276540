// Package repro collects what is needed to reproduce a run: build, host and source tree state.
package repro

import (
	"bufio"
	"context"
	"encoding/json"
	"maps"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

type Build struct {
	GoVersion string            `json:"go_version"`
	Main      string            `json:"main,omitempty"`
	Version   string            `json:"version,omitempty"`
	Settings  map[string]string `json:"settings,omitempty"`
	Deps      []string          `json:"deps,omitempty"`
}

type Host struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname,omitempty"`
	User     string `json:"user,omitempty"`
	NumCPU   int    `json:"num_cpu"`
	CPUModel string `json:"cpu_model,omitempty"`
}

type Git struct {
	Dir      string `json:"dir"`
	Revision string `json:"revision"`
	Branch   string `json:"branch,omitempty"`
	Dirty    bool   `json:"dirty"`

	// output of `git diff HEAD`, when dirty.
	Diff string `json:"diff,omitempty"`
}

// Snapshot is the content of domain.ReproFile.
type Snapshot struct {
	Created time.Time      `json:"created"`
	Args    []string       `json:"command_line"`
	Build   Build          `json:"build"`
	Host    Host           `json:"host"`
	Git     *Git           `json:"git,omitempty"`
	Data    map[string]any `json:"data"`
}

// AddData records a free-form value.
func (s *Snapshot) AddData(key string, value any) {
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	s.Data[key] = value
}

// Clone returns a copy of s. Data is copied shallowly.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Args = append([]string(nil), s.Args...)
	c.Build.Settings = maps.Clone(s.Build.Settings)
	c.Build.Deps = append([]string(nil), s.Build.Deps...)
	c.Data = maps.Clone(s.Data)
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	if s.Git != nil {
		g := *s.Git
		c.Git = &g
	}
	return &c
}

// Save writes s as indented JSON.
func (s *Snapshot) Save(path string) error {
	buf, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}

// Collect takes a snapshot. projectDir is inspected with git, if it is not empty.
//
// It never fails: what cannot be collected is left out.
func Collect(ctx context.Context, projectDir string) *Snapshot {
	s := &Snapshot{
		Created: time.Now().UTC(),
		Args:    append([]string(nil), os.Args...),
		Build:   build(),
		Host:    host(),
		Data:    map[string]any{},
	}
	if projectDir != "" {
		s.Git = gitState(ctx, projectDir)
	}
	return s
}

var (
	once   sync.Once
	cached *Snapshot
)

// Shared returns a copy of the snapshot taken at the first call in this process.
func Shared(ctx context.Context, projectDir string) *Snapshot {
	once.Do(func() { cached = Collect(ctx, projectDir) })
	return cached.Clone()
}

func build() Build {
	b := Build{GoVersion: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.Main = info.Main.Path
	b.Version = info.Main.Version
	b.Settings = map[string]string{}
	for _, s := range info.Settings {
		b.Settings[s.Key] = s.Value
	}
	for _, d := range info.Deps {
		b.Deps = append(b.Deps, d.Path+"@"+d.Version)
	}
	return b
}

func host() Host {
	h := Host{OS: runtime.GOOS, Arch: runtime.GOARCH, NumCPU: runtime.NumCPU()}
	h.Hostname, _ = os.Hostname()
	if u, err := user.Current(); err == nil {
		h.User = u.Username
	}
	h.CPUModel = cpuModel()
	return h
}

func cpuModel() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(k) == "model name" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func gitState(ctx context.Context, dir string) *Git {
	git := func(args ...string) (string, error) {
		cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.Output()
		return strings.TrimRight(string(out), "\n"), err
	}

	rev, err := git("rev-parse", "HEAD")
	if err != nil {
		return nil
	}
	g := &Git{Dir: dir, Revision: rev}
	if branch, err := git("rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		g.Branch = branch
	}
	if status, err := git("status", "--porcelain"); err == nil && status != "" {
		g.Dirty = true
		if diff, err := git("diff", "HEAD"); err == nil {
			g.Diff = diff
		}
	}
	return g
}
