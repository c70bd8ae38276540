package serve

import (
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/savethat/pkg/api/errors"
	"github.com/opst/savethat/pkg/domain"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/opst/savethat/pkg/node"
	"github.com/opst/savethat/pkg/utils/rfctime"
)

// Node is a registered node, as listed by the API.
type Node struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Doc      string `json:"doc,omitempty"`
}

func NodesHandler(reg *node.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries := reg.All()
		resp := make([]Node, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, Node{Name: e.Name(), FullName: e.FullName(), Doc: e.Doc()})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// FindRunHandler lists runs.
//
// Query parameters:
//
//   - prefix: (partial) key of runs
//   - local: "true" to look up only the local directory
//   - status: "completed" or "failed"
//   - before, after: inclusive bounds of the creation time, in (loose) RFC3339
func FindRunHandler(runs run.Interface) echo.HandlerFunc {
	return func(c echo.Context) error {
		query, err := findQuery(c)
		if err != nil {
			return err
		}

		found, err := runs.Find(c.Request().Context(), query)
		if err != nil {
			return apierr.FromError(err)
		}
		return c.JSON(http.StatusOK, found)
	}
}

func findQuery(c echo.Context) (run.Query, error) {
	local, err := boolParam(c, "local")
	if err != nil {
		return run.Query{}, err
	}
	q := run.Query{Prefix: c.QueryParam("prefix"), Remote: !local}

	switch s := c.QueryParam("status"); s {
	case "":
		q.Status = domain.AnyStatus
	case domain.Completed.String():
		q.Status = domain.OnlyCompleted
	case domain.Failed.String():
		q.Status = domain.OnlyFailed
	default:
		return run.Query{}, apierr.BadRequest(`"status" should be "completed" or "failed"`, nil)
	}

	for _, p := range []struct {
		name string
		dest **time.Time
	}{
		{name: "before", dest: &q.Before},
		{name: "after", dest: &q.After},
	} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := rfctime.ParseLoose(v)
		if err != nil {
			return run.Query{}, apierr.BadRequest(
				`"`+p.name+`" should be a RFC3339 date-time format`, err,
			)
		}
		*p.dest = &t
	}
	if q.Before != nil && q.After != nil && q.Before.Before(*q.After) {
		return run.Query{}, apierr.BadRequest(`"before" should not be earlier than "after"`, nil)
	}
	return q, nil
}

// GetRunHandler returns a run with its records.
//
// Keys of nested runs should be escaped, like "sweep%2FFit_2024-03-01T12-30-00".
func GetRunHandler(runs run.Interface, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := pathParam(c, param)
		if err != nil {
			return err
		}
		local, err := boolParam(c, "local")
		if err != nil {
			return err
		}

		detail, err := runs.Get(c.Request().Context(), key, !local)
		if err != nil {
			return apierr.FromError(err)
		}
		return c.JSON(http.StatusOK, detail)
	}
}

// GetFileHandler sends a file of a run.
//
// When the file is missing locally, it is downloaded from the remote.
func GetFileHandler(st run.Storage, keyParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := pathParam(c, keyParam)
		if err != nil {
			return err
		}
		name, err := pathParam(c, "*")
		if err != nil {
			return err
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return apierr.BadRequest("file should be a path in the run directory", nil)
		}

		f, err := st.Open(c.Request().Context(), path.Join(key, name))
		if err != nil {
			return apierr.FromError(err)
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if stat.IsDir() {
			return apierr.BadRequest("file should be a path in the run directory", nil)
		}

		http.ServeContent(c.Response(), c.Request(), name, stat.ModTime(), f)
		return nil
	}
}

func pathParam(c echo.Context, name string) (string, error) {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return "", apierr.BadRequest("path is not escaped properly", err)
	}
	return v, nil
}

func boolParam(c echo.Context, name string) (bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apierr.BadRequest(`"`+name+`" should be "true" or "false"`, err)
	}
	return b, nil
}
