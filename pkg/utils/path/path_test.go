package path_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	spath "github.com/opst/savethat/pkg/utils/path"
	"github.com/opst/savethat/pkg/utils/try"
)

func TestResolve(t *testing.T) {
	t.Run("it does nothing for absolute path", func(t *testing.T) {
		got := try.To(spath.Resolve("/a/b/c")).OrFatal(t)
		if got != "/a/b/c" {
			t.Errorf("unexpected path: %s", got)
		}
	})

	t.Run("it expands tilde(~) into user home", func(t *testing.T) {
		home := try.To(os.UserHomeDir()).OrFatal(t)
		got := try.To(spath.Resolve("~/a/b/c")).OrFatal(t)
		if expected := filepath.Join(home, "a/b/c"); got != expected {
			t.Errorf("~ is not resolved: (actual, expected) = (%s, %s)", got, expected)
		}
	})

	t.Run("it resolves and cleans relative path", func(t *testing.T) {
		pwd := try.To(os.Getwd()).OrFatal(t)
		got := try.To(spath.Resolve("./a/x/../b")).OrFatal(t)
		if expected := filepath.Join(pwd, "a/b"); got != expected {
			t.Errorf("unexpected path: (actual, expected) = (%s, %s)", got, expected)
		}
	})
}

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "project")
	deep := filepath.Join(project, "cmd", "exp")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("it finds the nearest ancestor having the marker", func(t *testing.T) {
		got := try.To(spath.FindUp(deep, "go.mod")).OrFatal(t)
		if got != project {
			t.Errorf("unexpected dir: (actual, expected) = (%s, %s)", got, project)
		}
	})

	t.Run("it returns the start directory when it has the marker", func(t *testing.T) {
		got := try.To(spath.FindUp(project, "go.mod")).OrFatal(t)
		if got != project {
			t.Errorf("unexpected dir: (actual, expected) = (%s, %s)", got, project)
		}
	})

	t.Run("when no ancestor has the marker, it returns ErrNotFound", func(t *testing.T) {
		_, err := spath.FindUp(deep, "no-such-marker-file.txt")
		if !errors.Is(err, spath.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
