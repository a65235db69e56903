// Package server exposes a session over HTTP.
//
// Routes:
//
//	GET  /api/status/   training progress
//	POST /api/predict/  classify a PNG or JPEG body
//	POST /api/strokes/  classify strokes drawn on a blank canvas
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/born-ml/digitpad/internal/logging"
)

var API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

// Options configures BuildServer.
type Options struct {
	LogLevel  string
	BodyLimit string // echo BodyLimit notation; no limit when empty
	Canvas    CanvasDefaults

	// Logger replaces echo's default logger when set.
	Logger echo.Logger
}

func BuildServer(c Classifier, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	logging.SetLevel(e.Logger, opts.LogLevel)

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}

	e.Pre(middleware.AddTrailingSlash())
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
	e.Use(LogHandlerFunc(c))

	e.GET(api("status"), GetStatusHandler(c))
	e.POST(api("predict"), PostPredictHandler(c, opts.Canvas))
	e.POST(api("strokes"), PostStrokesHandler(c, opts.Canvas))

	return e
}

// predictedClassKey holds the class a handler answered with.
const predictedClassKey = "digitpad.class"

// LogHandlerFunc returns a middleware logging every request and its response,
// tagged with the id of the session serving it. Predictions also log the
// class they answered with.
func LogHandlerFunc(c Classifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sessionID := c.Status().ID
			meth := ctx.Request().Method
			path := ctx.Request().URL
			begin := time.Now()
			ctx.Logger().Infof("< [session %s] %s %s", sessionID, meth, path)

			err := next(ctx)

			status := ctx.Response().Status
			if he := new(echo.HTTPError); errors.As(err, &he) {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			outcome := "-"
			if class, ok := ctx.Get(predictedClassKey).(int); ok {
				outcome = fmt.Sprintf("class %d", class)
			}
			ctx.Logger().Infof(
				"> [session %s] %s %s: %d %s in %v / error = %v",
				sessionID, meth, path, status, outcome, time.Since(begin), err,
			)
			return err
		}
	}
}
