package serve

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/opst/savethat/pkg/cli/subcommands/common"
	"github.com/opst/savethat/pkg/node"
	"github.com/youta-t/flarc"
)

type Flags struct {
	Listen string `flag:"listen" alias:"l" metavar:"ADDR" help:"Address to listen on."`
}

// ShutdownTimeout is the time waiting for in-flight requests on interruption.
const ShutdownTimeout = 5 * time.Second

func New(reg *node.Registry) (flarc.Command, error) {
	return flarc.NewCommand(
		"Serve nodes and runs over HTTP.",
		Flags{Listen: "localhost:8080"},
		flarc.Args{},
		common.NewTask(Task(reg)),
		flarc.WithDescription(`
Serve a read-only HTTP API over registered nodes and stored runs, until interrupted.

	GET /api/nodes                    list nodes
	GET /api/runs                     list runs (?prefix=&local=&status=&before=&after=)
	GET /api/runs/KEY                 a run with its args and results (?local=)
	GET /api/runs/KEY/files/FILE      a file of a run

Keys of nested runs should be escaped, like "sweep%2FFitOLS_2024-03-01T12-30-00".
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
		addr := cl.Flags().Listen
		e := BuildServer(reg, session.Storage, session.Logger)

		served := make(chan error, 1)
		go func() {
			served <- e.Start(addr)
		}()
		logger.Printf("serving on %s", addr)

		select {
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Printf("stopped")
		return nil
	}
}
