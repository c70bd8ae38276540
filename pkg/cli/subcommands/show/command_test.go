package show_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/opst/savethat/pkg/cli/subcommands/internal/commandline"
	"github.com/opst/savethat/pkg/cli/subcommands/internal/testsession"
	"github.com/opst/savethat/pkg/cli/subcommands/logger"
	"github.com/opst/savethat/pkg/cli/subcommands/show"
	"github.com/opst/savethat/pkg/domain/run"
)

func TestShowCommand(t *testing.T) {
	type When struct {
		key   string
		local bool
	}
	type Then struct {
		err    error
		result string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			session := testsession.New(t, true)
			testsession.Seed(t, session, "Fit_2024-03-01T10-00-00", true)
			testsession.Seed(t, session, "Fit_2024-03-01T11-00-00", false)
			if err := session.Storage.Remove(ctx, "Fit_2024-03-01T10-00-00", true, false); err != nil {
				t.Fatal(err)
			}

			stdout := new(strings.Builder)
			err := show.Task(
				ctx,
				logger.Null(),
				session,
				commandline.MockCommandline[show.Flags]{
					Fullname_: "fit show",
					Stdout_:   stdout,
					Stderr_:   new(strings.Builder),
					Flags_:    show.Flags{Local: when.local},
					Args_:     map[string][]string{show.ARG_KEY: {when.key}},
				},
				[]any{},
			)
			if !errors.Is(err, then.err) {
				t.Fatalf("unexpected error: (actual, expected) = (%v, %v)", err, then.err)
			}
			if err != nil {
				return
			}

			var detail run.Detail
			if err := json.Unmarshal([]byte(stdout.String()), &detail); err != nil {
				t.Fatal(err)
			}
			if detail.Key != when.key || detail.Args["__node__"] != "Fit" {
				t.Errorf("unexpected detail: %+v", detail)
			}
			result := new(bytes.Buffer)
			if len(detail.Result) != 0 {
				if err := json.Compact(result, detail.Result); err != nil {
					t.Fatal(err)
				}
			}
			if result.String() != then.result {
				t.Errorf("unexpected result: (actual, expected) = (%s, %s)", result, then.result)
			}
		}
	}

	t.Run("completed run is shown with its result, downloading records", theory(
		When{key: "Fit_2024-03-01T10-00-00"},
		Then{result: `{"rmse":0.5}`},
	))
	t.Run("failed run is shown without result", theory(
		When{key: "Fit_2024-03-01T11-00-00"},
		Then{result: ""},
	))
	t.Run("run only in remote is not found with --local", theory(
		When{key: "Fit_2024-03-01T10-00-00", local: true},
		Then{err: run.ErrRunNotFound},
	))
	t.Run("missing run is not found", theory(
		When{key: "Missing_2024-01-01T00-00-00"},
		Then{err: run.ErrRunNotFound},
	))
}
