package common

import (
	"errors"

	"github.com/opst/savethat/pkg/cli/config/profiles"
	kpath "github.com/opst/savethat/pkg/utils/path"
)

// ProjectMarker is the file marking the root directory of a project.
const ProjectMarker = "go.mod"

type CommonFlags struct {
	Profile      string `flag:"profile" help:"profile name to use. Default: the project name"`
	ProfileStore string `flag:"profile-store" help:"path to profile store file"`
	ProjectDir   string `flag:"project-dir" help:"root directory of the project"`
	Debug        bool   `flag:"debug" help:"print debug messages"`
}

type commonFlagDetection struct {
	store string
}

type CommonFlagDetectionOption func(*commonFlagDetection) *commonFlagDetection

// WithProfileStore replaces the default location of the profile store.
func WithProfileStore(store string) CommonFlagDetectionOption {
	return func(opt *commonFlagDetection) *commonFlagDetection {
		opt.store = store
		return opt
	}
}

// Flags returns the default common flags for project.
//
// The project directory is the nearest directory having go.mod, searched upward from `from`.
// When it is not found, `from` is the project directory.
func Flags(project string, from string, opt ...CommonFlagDetectionOption) (CommonFlags, error) {
	detparam := commonFlagDetection{store: ""}
	for _, o := range opt {
		detparam = *o(&detparam)
	}

	store := detparam.store
	if store == "" {
		store = profiles.DefaultStorePath()
	}

	projectDir, err := kpath.FindUp(from, ProjectMarker)
	if errors.Is(err, kpath.ErrNotFound) {
		projectDir, err = kpath.Resolve(from)
	}
	if err != nil {
		return CommonFlags{}, err
	}

	return CommonFlags{
		Profile:      project,
		ProfileStore: store,
		ProjectDir:   projectDir,
	}, nil
}
