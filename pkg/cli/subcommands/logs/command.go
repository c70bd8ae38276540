package logs

import (
	"context"
	"errors"
	"io"
	"log"
	"path"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/storage"
	"github.com/opst/savethat/pkg/utils/filewatch"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Follow bool `flag:"follow" alias:"f" help:"Keep printing lines appended to the log, until interrupted."`
	JSON   bool `flag:"json" help:"Print the log in JSON lines."`
}

const ARG_KEY = "KEY"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Print the log of a run.",
		Flags{},
		flarc.Args{
			{Name: ARG_KEY, Required: true, Help: "Key of the run."},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Print the log of a run.

When the log is missing locally, it is downloaded from the remote storage.
With --follow, lines appended to the log are printed until interrupted.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	session common.Session,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	flags := cl.Flags()
	name := domain.LogFile
	if flags.JSON {
		name = domain.JSONLogFile
	}
	key := path.Join(cl.Args()[ARG_KEY][0], name)

	f, err := session.Storage.Open(ctx, key)
	if errors.Is(err, storage.ErrInvalidKey) {
		return errors.Join(flarc.ErrUsage, err)
	} else if err != nil {
		return err
	}
	defer f.Close()

	if !flags.Follow {
		_, err := io.Copy(cl.Stdout(), f)
		return err
	}

	err = filewatch.Follow(ctx, f.Name(), cl.Stdout())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
