package ls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"time"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	kflag "github.com/opst/savethat/pkg/commandline/flag"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Before    *kflag.OptionalLooseRFC3339 `flag:"before" help:"List runs created at this time or earlier."`
	After     *kflag.OptionalLooseRFC3339 `flag:"after" help:"List runs created at this time or later."`
	Last      *kflag.Last                 `flag:"last" metavar:"N[m|h|d]" help:"List runs created in the last N minutes / hours / days. No unit means minutes."`
	Failed    bool                        `flag:"failed" help:"List only runs without results."`
	Completed bool                        `flag:"completed" help:"List only runs with results."`
	Local     bool                        `flag:"local" help:"List only locally stored runs."`
	All       bool                        `flag:"all" help:"List all files of the runs."`
	Absolute  bool                        `flag:"absolute" alias:"a" help:"Print absolute local paths."`
	JSON      bool                        `flag:"json" help:"Print runs as JSON."`
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
		"List past runs.",
		DefaultFlags(),
		flarc.Args{
			{
				Name: ARG_PATH, Required: false,
				Help: "(Partial) key of runs to be listed.",
			},
		},
		common.NewTask(Task(options...)),
		flarc.WithDescription(`
List past runs.

Runs are looked up in the remote storage, unless --local is passed
(or the profile does not sync with remote).

'--before' and '--after' are inclusive bounds of the creation time of runs,
which are formatted in RFC3339, and it is also possible to omit sub-seconds,
seconds, minutes, hours and time offsets. When the time offset is omitted, it is UTC.
For example, "2024-10-31T01:23:45.987Z", "2024-10-31 01:23" or "2024-10-31+09:00".

'--last' cannot be used with '--after'.
`),
	)
}

func DefaultFlags() Flags {
	return Flags{
		Before: &kflag.OptionalLooseRFC3339{},
		After:  &kflag.OptionalLooseRFC3339{},
		Last:   &kflag.Last{},
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

		query, err := Query(flags, cl.Args()[ARG_PATH], option.now())
		if err != nil {
			return err
		}
		query.Remote = !flags.Local

		runs, err := run.New(session.Storage).Find(ctx, query)
		if err != nil {
			return err
		}

		if flags.JSON {
			enc := json.NewEncoder(cl.Stdout())
			enc.SetIndent("", "    ")
			return enc.Encode(runs)
		}
		root := ""
		if flags.Absolute {
			root = session.Storage.LocalPath()
		}
		return Print(cl.Stdout(), runs, root, flags.All)
	}
}

// Query builds run.Query from flags and the optional PATH argument.
func Query(flags Flags, prefix []string, now time.Time) (run.Query, error) {
	status, err := domain.StatusFilterOf(flags.Completed, flags.Failed)
	if err != nil {
		return run.Query{}, fmt.Errorf("%w: --completed and --failed are exclusive", flarc.ErrUsage)
	}
	before, after, err := common.Window(flags.Before, flags.After, flags.Last, now)
	if err != nil {
		return run.Query{}, err
	}

	q := run.Query{Status: status, Before: before, After: after}
	if 0 < len(prefix) {
		q.Prefix = prefix[0]
	}
	return q, nil
}

// Print writes keys of runs, or their files when all is true, one per line.
//
// When root is not empty, they are printed as local paths under root.
func Print(w io.Writer, runs []run.Run, root string, all bool) error {
	name := func(key string) string {
		if root == "" {
			return key
		}
		return filepath.Join(root, filepath.FromSlash(key))
	}

	for _, r := range runs {
		if !all {
			if _, err := fmt.Fprintln(w, name(r.Key)); err != nil {
				return err
			}
			continue
		}
		for _, f := range r.Files {
			if _, err := fmt.Fprintln(w, name(path.Join(r.Key, f.Path))); err != nil {
				return err
			}
		}
	}
	return nil
}
