package run

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/opst/savethat/pkg/args"
	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/node"
	"github.com/youta-t/flarc"
	"go.uber.org/zap"
)

type Flags struct {
	Config string `flag:"config" metavar:"FILE" help:"YAML or JSON file with arguments of the node. Node flags cannot be used together."`
}

const (
	ARG_NODE      = "NODE"
	ARG_NODE_ARGS = "NODE_ARGS"
)

var ErrConfigWithFlags = errors.New("both of config file and node flags are given")

func New(reg *node.Registry) (flarc.Command, error) {
	return flarc.NewCommand(
		"Run a node, and save the run.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_NODE, Required: true,
				Help: `Name of the node. "Name" or "package/path.Name" (see "nodes").`,
			},
			{
				Name: ARG_NODE_ARGS, Required: false, Repeatable: true,
				Help: `Flags of the node. Put them after "--".`,
			},
		},
		common.NewTask(Task(reg)),
		flarc.WithDescription(`
Run a node, and save the run.

Arguments, logs, reproducibility information and the result of the node are
saved in a new run directory, and the directory is uploaded to the remote storage.

To see flags of a node:

	run NODE -- --help

To give arguments from a file:

	run --config args.yaml NODE
`),
	)
}

func Task(reg *node.Registry) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		session common.Session,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		name := cl.Args()[ARG_NODE][0]
		nodeArgs := cl.Args()[ARG_NODE_ARGS]
		flags := cl.Flags()

		entry, err := reg.Lookup(name)
		if err != nil {
			return errors.Join(flarc.ErrUsage, err)
		}

		env := session.Environment()
		var inst node.Instance
		if flags.Config != "" {
			if len(nodeArgs) != 0 {
				return fmt.Errorf(
					"%w: %w. config file: %s, flags: %v",
					flarc.ErrUsage, ErrConfigWithFlags, flags.Config, nodeArgs,
				)
			}
			inst, err = entry.FromFile(flags.Config, env)
		} else {
			inst, err = entry.FromArgv(nodeArgs, cl.Stdout(), env)
		}
		if errors.Is(err, args.ErrHelp) {
			return nil
		} else if errors.Is(err, args.ErrInvalidArgs) || errors.Is(err, args.ErrMissingRequired) {
			return errors.Join(flarc.ErrUsage, err)
		} else if err != nil {
			return err
		}

		if _, err := inst.Execute(ctx); err != nil {
			return fmt.Errorf("run %s: %w", inst.Key(), err)
		}
		session.Logger.Info(
			"finished running node",
			zap.String("key", inst.Key()),
			zap.String("output_dir", inst.OutputDir()),
		)
		fmt.Fprintln(cl.Stdout(), inst.Key())
		return nil
	}
}
