package show

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Local bool `flag:"local" help:"Look the run up only in the local storage."`
}

const ARG_KEY = "KEY"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show a run with its arguments and result.",
		Flags{},
		flarc.Args{
			{Name: ARG_KEY, Required: true, Help: "Key of the run to be shown."},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Show a run with its arguments and result, as JSON.

Records of the run missing locally are downloaded from the remote storage.
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
	key := cl.Args()[ARG_KEY][0]
	detail, err := run.New(session.Storage).Get(ctx, key, !cl.Flags().Local)
	if errors.Is(err, run.ErrRunNotFound) {
		return errors.Join(flarc.ErrUsage, err)
	} else if err != nil {
		return err
	}

	enc := json.NewEncoder(cl.Stdout())
	enc.SetIndent("", "    ")
	return enc.Encode(detail)
}
