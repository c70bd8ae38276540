// Package cli is the command line interface of projects using savethat.
//
// A project registers its nodes and hands them to Main:
//
//	func main() {
//		reg := node.NewRegistry()
//		node.MustRegister(reg, FitOLS{}, FitArgs{Epochs: 10})
//
//		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//		defer cancel()
//		os.Exit(cli.Main(ctx, "fitting", reg))
//	}
package cli

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/cli/subcommands/logger"
	"github.com/opst/savethat/pkg/cli/subcommands/logs"
	"github.com/opst/savethat/pkg/cli/subcommands/ls"
	"github.com/opst/savethat/pkg/cli/subcommands/nodes"
	"github.com/opst/savethat/pkg/cli/subcommands/rm"
	subrun "github.com/opst/savethat/pkg/cli/subcommands/run"
	"github.com/opst/savethat/pkg/cli/subcommands/serve"
	"github.com/opst/savethat/pkg/cli/subcommands/setup"
	"github.com/opst/savethat/pkg/cli/subcommands/show"
	"github.com/opst/savethat/pkg/cli/subcommands/transfer"
	"github.com/opst/savethat/pkg/cli/subcommands/version"
	"github.com/opst/savethat/pkg/node"
	"github.com/youta-t/flarc"
)

type Option struct {
	from  string
	store string
}

// WithWorkingDirectory replaces the directory where the project directory is searched from.
func WithWorkingDirectory(dir string) func(*Option) *Option {
	return func(o *Option) *Option {
		o.from = dir
		return o
	}
}

// WithProfileStore replaces the default location of the profile store.
func WithProfileStore(path string) func(*Option) *Option {
	return func(o *Option) *Option {
		o.store = path
		return o
	}
}

// New builds the command group for project, with nodes in reg.
func New(project string, reg *node.Registry, options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{from: "."}
	for _, o := range options {
		option = o(option)
	}

	detopts := []common.CommonFlagDetectionOption{}
	if option.store != "" {
		detopts = append(detopts, common.WithProfileStore(option.store))
	}
	cf, err := common.Flags(project, option.from, detopts...)
	if err != nil {
		return nil, err
	}

	nodes, err := nodes.New(reg)
	if err != nil {
		return nil, err
	}
	run, err := subrun.New(reg)
	if err != nil {
		return nil, err
	}
	ls, err := ls.New()
	if err != nil {
		return nil, err
	}
	rm, err := rm.New()
	if err != nil {
		return nil, err
	}
	upload, err := transfer.NewUpload()
	if err != nil {
		return nil, err
	}
	download, err := transfer.NewDownload()
	if err != nil {
		return nil, err
	}
	show, err := show.New()
	if err != nil {
		return nil, err
	}
	logs, err := logs.New()
	if err != nil {
		return nil, err
	}
	setup, err := setup.New()
	if err != nil {
		return nil, err
	}
	serve, err := serve.New(reg)
	if err != nil {
		return nil, err
	}
	version, err := version.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		fmt.Sprintf("Run and keep track of nodes of %s.", project),
		cf,
		flarc.WithSubcommand("nodes", nodes),
		flarc.WithSubcommand("run", run),
		flarc.WithSubcommand("ls", ls),
		flarc.WithSubcommand("rm", rm),
		flarc.WithSubcommand("upload", upload),
		flarc.WithSubcommand("download", download),
		flarc.WithSubcommand("show", show),
		flarc.WithSubcommand("logs", logs),
		flarc.WithSubcommand("setup", setup),
		flarc.WithSubcommand("serve", serve),
		flarc.WithSubcommand("version", version),
	)
}

// Main runs the command line of project with os.Args, and returns the exit code.
func Main(ctx context.Context, project string, reg *node.Registry, options ...func(*Option) *Option) int {
	logger := logger.ForProgram(path.Base(os.Args[0]))

	cmd, err := New(project, reg, options...)
	if err != nil {
		logger.Println(err)
		return 1
	}
	return flarc.Run(ctx, cmd, flarc.WithHelp(true))
}
