package nodes

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/node"
	"github.com/youta-t/flarc"
)

func New(reg *node.Registry) (flarc.Command, error) {
	return flarc.NewCommand(
		"List nodes runnable with `run`.",
		struct{}{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task(reg)),
	)
}

func Task(reg *node.Registry) common.TaskWithCommonFlag[struct{}] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		_ common.CommonFlags,
		cl flarc.Commandline[struct{}],
		params []any,
	) error {
		return Print(cl.Stdout(), reg.All())
	}
}

// Print writes full names of nodes with the first line of their docs.
func Print(w io.Writer, entries []node.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No nodes are registered.")
		return err
	}

	fmt.Fprintln(w, "Found the following executable nodes:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		doc, _, _ := strings.Cut(strings.TrimSpace(e.Doc()), "\n")
		if doc == "" {
			doc = "[no description]"
		}
		fmt.Fprintf(tw, "    %s\t- %s\n", e.FullName(), doc)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nFor the flags of each node, run: run %s -- --help\n", entries[len(entries)-1].Name())
	return err
}
