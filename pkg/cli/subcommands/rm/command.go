package rm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	kflag "github.com/opst/savethat/pkg/commandline/flag"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Failed bool                        `flag:"failed" help:"Remove only runs without results."`
	Local  bool                        `flag:"local" help:"Remove only local copies of runs."`
	Force  bool                        `flag:"force" help:"Do not ask for confirmation."`
	Dry    bool                        `flag:"dry" help:"Show runs to be removed, and exit without removing."`
	Last   *kflag.Last                 `flag:"last" metavar:"N[m|h|d]" help:"Remove runs created in the last N minutes / hours / days. No unit means minutes."`
	Before *kflag.OptionalLooseRFC3339 `flag:"before" help:"Remove runs created at this time or earlier."`
	After  *kflag.OptionalLooseRFC3339 `flag:"after" help:"Remove runs created at this time or later."`
}

const ARG_PATH = "PATH"

type Option struct {
	now func() time.Time
}

// WithClock replaces the clock used for --last.
func WithClock(now func() time.Time) func(*Option) *Option {
	return func(o *Option) *Option {
		o.now = now
		return o
	}
}

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	return flarc.NewCommand(
		"Remove runs, from both of local and remote.",
		DefaultFlags(),
		flarc.Args{
			{
				Name: ARG_PATH, Required: false,
				Help: "(Partial) key of runs to be removed.",
			},
		},
		common.NewTask(Task(options...)),
		flarc.WithDescription(`
Remove runs, from both of local and remote.

Runs to be removed are shown, and then you are asked to confirm.
To skip confirmation, pass --force. To see runs to be removed only, pass --dry.

With --local, only local copies are removed. Runs stay in the remote storage.
Removing only remote copies is not supported.
`),
	)
}

func DefaultFlags() Flags {
	return Flags{
		Last:   &kflag.Last{},
		Before: &kflag.OptionalLooseRFC3339{},
		After:  &kflag.OptionalLooseRFC3339{},
	}
}

func Task(options ...func(*Option) *Option) common.Task[Flags] {
	option := &Option{now: time.Now}
	for _, o := range options {
		option = o(option)
	}

	return func(
		ctx context.Context,
		logger *log.Logger,
		session common.Session,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		flags := cl.Flags()
		before, after, err := common.Window(flags.Before, flags.After, flags.Last, option.now())
		if err != nil {
			return err
		}
		status := domain.AnyStatus
		if flags.Failed {
			status = domain.OnlyFailed
		}
		query := run.Query{Remote: !flags.Local, Status: status, Before: before, After: after}
		if p := cl.Args()[ARG_PATH]; 0 < len(p) {
			query.Prefix = p[0]
		}

		runs, err := run.New(session.Storage).Find(ctx, query)
		if err != nil {
			return err
		}

		out := cl.Stdout()
		where := "both LOCAL and REMOTE"
		if flags.Local || !session.Storage.HasRemote() {
			where = "LOCAL"
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No matching runs found.")
			return nil
		}

		nfiles := 0
		fmt.Fprintf(out, "Would delete the following runs from %s:\n\n", where)
		for _, r := range runs {
			fmt.Fprintln(out, r.Key)
			nfiles += len(r.Files)
		}
		fmt.Fprintf(out, "\nWould delete %d runs with %d files.\n", len(runs), nfiles)
		if flags.Dry {
			return nil
		}

		if !flags.Force {
			fmt.Fprintf(out, "\nAre you sure you want to DELETE these runs (%s)? (y/n) ", where)
			ok, err := confirm(cl.Stdin())
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborting.")
				return nil
			}
		}

		var errs []error
		for _, r := range runs {
			if err := session.Storage.Remove(ctx, r.Key, true, !flags.Local); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Key, err))
				continue
			}
			logger.Printf("deleted: %s", r.Key)
		}
		return errors.Join(errs...)
	}
}

func confirm(in io.Reader) (bool, error) {
	if in == nil {
		return false, nil
	}
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		return false, sc.Err()
	}
	return strings.ToLower(strings.TrimSpace(sc.Text())) == "y", nil
}
