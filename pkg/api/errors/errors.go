// Package errors builds error responses of the HTTP API.
//
// Error responses are JSON like:
//
//	{"message": {"reason": "not found", "advice": "..."}}
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/opst/savethat/pkg/node"
	"github.com/opst/savethat/pkg/storage"
)

type ErrorResponse struct {
	Message ErrorMessage `json:"message"`
}

type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
	Cause  error  `json:"-"`
}

func (em *ErrorMessage) UnmarshalJSON(b []byte) error {
	f := new(struct {
		Reason *string `json:"reason"`
		Advice string  `json:"advice"`
	})
	if err := json.Unmarshal(b, f); err != nil {
		return err
	}
	if f.Reason == nil {
		return fmt.Errorf(`required field missing: "reason"`)
	}
	em.Reason = *f.Reason
	em.Advice = f.Advice
	return nil
}

func (e ErrorMessage) Error() string {
	lines := []string{e.Reason}
	if e.Advice != "" {
		lines = append(lines, e.Advice)
	}
	if e.Cause != nil {
		lines = append(lines, " caused by: "+e.Cause.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

// New returns echo.HTTPError with ErrorMessage.
//
// cause is not sent to clients, but it is kept as the internal error for logging.
func New(code int, reason string, advice string, cause error) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason, Advice: advice, Cause: cause}
	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func NotFound(advice string, cause error) *echo.HTTPError {
	return New(http.StatusNotFound, "not found", advice, cause)
}

func BadRequest(advice string, cause error) *echo.HTTPError {
	return New(http.StatusBadRequest, "bad request", advice, cause)
}

func InternalServerError(cause error) *echo.HTTPError {
	return New(http.StatusInternalServerError, "unexpected error", "", cause)
}

// FromError converts errors of the run index and the storage into HTTP errors.
func FromError(err error) *echo.HTTPError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, run.ErrRunNotFound):
		return NotFound("no such run. list runs with GET /api/runs", err)
	case errors.Is(err, node.ErrNodeNotFound):
		return NotFound("no such node. list nodes with GET /api/nodes", err)
	case errors.Is(err, fs.ErrNotExist):
		return NotFound("no such file in the run", err)
	case errors.Is(err, storage.ErrInvalidKey):
		return BadRequest("key should be a relative path in the storage", err)
	default:
		return InternalServerError(err)
	}
}
