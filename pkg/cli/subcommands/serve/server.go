package serve

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apierr "github.com/opst/savethat/pkg/api/errors"
	"github.com/opst/savethat/pkg/domain/run"
	"github.com/opst/savethat/pkg/node"
	"github.com/opst/savethat/pkg/utils/echoutil"
	"go.uber.org/zap"
)

const API_ROOT = "/api"

// BuildServer returns a read-only API server over nodes in reg and runs in st.
func BuildServer(reg *node.Registry, st run.Storage, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		herr := new(echo.HTTPError)
		if !errors.As(err, &herr) {
			herr = apierr.InternalServerError(err)
		}
		msg, ok := herr.Message.(apierr.ErrorMessage)
		if !ok {
			// errors from echo itself, like 404 for unknown routes.
			msg = apierr.ErrorMessage{Reason: http.StatusText(herr.Code)}
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(herr.Code)
		} else {
			err = c.JSON(herr.Code, apierr.ErrorResponse{Message: msg})
		}
		if err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
	}

	e.Use(middleware.Recover())
	e.Use(echoutil.RequestLogger(logger))

	runs := run.New(st)
	e.GET(API_ROOT+"/nodes", NodesHandler(reg))
	e.GET(API_ROOT+"/runs", FindRunHandler(runs))
	e.GET(API_ROOT+"/runs/:key", GetRunHandler(runs, "key"))
	e.GET(API_ROOT+"/runs/:key/files/*", GetFileHandler(st, "key"))

	return e
}
