package serve

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/youta-t/flarc"

	"github.com/born-ml/digitpad/cmd/digitpad/subcommands/common"
	"github.com/born-ml/digitpad/internal/config"
	"github.com/born-ml/digitpad/internal/server"
)

type Flags struct {
	Listen string `flag:"listen" alias:"l" metavar:"HOST:PORT" help:"overrides server.listen of the config."`
}

// ShutdownTimeout bounds the graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Serve the digit classifier over HTTP while it trains.",
		Flags{Listen: ""},
		flarc.Args{},
		common.NewTask(Task()),
		flarc.WithDescription(`
Start the HTTP API and train a fresh classifier in the background.

	GET  /api/status/   training progress
	POST /api/predict/  classify a PNG or JPEG body
	POST /api/strokes/  classify strokes drawn on a blank canvas

Predictions answer 503 until training completes.

When started with --config, the server shuts down as soon as the config
file changes, so that a supervisor can restart it with the new settings.
`),
	)
}

func Task() common.Task[Flags] {
	return func(
		ctx context.Context,
		env common.Env,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		cfg := env.Config
		if l := cl.Flags().Listen; l != "" {
			cfg.Server.Listen = l
		}
		logger := env.Logger

		if env.ConfigPath != "" {
			wctx, cancel, err := config.UntilModified(ctx, env.ConfigPath)
			if err != nil {
				return err
			}
			defer cancel()
			ctx = wctx
		}

		seed := common.Seed(cfg)
		source, err := common.OpenSource(cfg, seed)
		if err != nil {
			return err
		}
		sess, err := common.NewSession(env, seed)
		if err != nil {
			return err
		}
		defer sess.Close()

		go func() {
			if _, err := sess.Train(ctx, source); err != nil {
				logger.Errorf("training failed: %s", err)
			}
		}()

		e := server.BuildServer(sess, server.Options{
			LogLevel:  cfg.Log.Level,
			BodyLimit: cfg.Server.BodyLimit,
			Canvas: server.CanvasDefaults{
				Width:       cfg.Canvas.Width,
				Height:      cfg.Canvas.Height,
				StrokeWidth: cfg.Canvas.StrokeWidth,
				MaxSide:     cfg.Canvas.MaxSide,
			},
			Logger: logger,
		})

		serverErr := make(chan error, 1)
		go func() {
			serverErr <- e.Start(cfg.Server.Listen)
		}()

		select {
		case err := <-serverErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			logger.Infof("shutting down: %s", context.Cause(ctx))
		}

		sctx, scancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer scancel()
		if err := e.Shutdown(sctx); err != nil {
			return err
		}
		<-sess.Done()
		return nil
	}
}
