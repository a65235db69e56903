// Package common holds what every digitpad subcommand shares: the common
// flags, config loading and the session/data wiring.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/youta-t/flarc"

	"github.com/born-ml/digitpad/internal/canvas"
	"github.com/born-ml/digitpad/internal/config"
	"github.com/born-ml/digitpad/internal/data"
	"github.com/born-ml/digitpad/internal/logging"
	"github.com/born-ml/digitpad/internal/session"
)

type CommonFlags struct {
	Config   string `flag:"config" alias:"c" metavar:"path/to/config.yaml" help:"config file. Defaults are used when it is not given."`
	LogLevel string `flag:"loglevel" metavar:"debug|info|warn|error|off" help:"overrides log.level of the config."`
}

// Env is what a task gets in addition to its own flags.
type Env struct {
	Config config.Config

	// ConfigPath is empty when running on defaults.
	ConfigPath string

	Logger *log.Logger
}

type Task[T any] func(
	ctx context.Context,
	env Env,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTask loads the config named by the common flags and hands it to task.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		env, err := LoadEnv(commonFlag, cl.Fullname())
		if err != nil {
			return err
		}
		env.Logger.SetOutput(cl.Stderr())
		return task(ctx, env, cl, newpos)
	}
}

// LoadEnv resolves the config and the logger for the common flags.
func LoadEnv(cf CommonFlags, prefix string) (Env, error) {
	cfg := config.Default()
	if cf.Config != "" {
		c, err := config.Load(cf.Config)
		if err != nil {
			return Env{}, fmt.Errorf("%w: failed to load config (%s)", err, cf.Config)
		}
		cfg = c
	}
	if cf.LogLevel != "" {
		cfg.Log.Level = cf.LogLevel
	}
	return Env{
		Config:     cfg,
		ConfigPath: cf.Config,
		Logger:     logging.New(prefix, cfg.Log.Level),
	}, nil
}

// Seed is the configured seed, or one taken from the clock.
func Seed(cfg config.Config) int64 {
	if cfg.Seed != nil {
		return *cfg.Seed
	}
	return time.Now().UnixNano()
}

// OpenSource opens the batch source named by data.source.
func OpenSource(cfg config.Config, seed int64) (data.TestSource, error) {
	switch cfg.Data.Source {
	case config.SourceSynthetic:
		return data.NewSynthetic(seed), nil
	case config.SourceMNIST:
		m, err := data.LoadMNIST(cfg.Data.Dir, data.MNISTOptions{
			Shuffle:    cfg.Data.Shuffle,
			Seed:       seed,
			MaxSamples: cfg.Data.MaxSamples,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: put the MNIST IDX files into %s or set data.source to %s", err, cfg.Data.Dir, config.SourceSynthetic)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown data.source %q", config.ErrConfigInvalid, cfg.Data.Source)
	}
}

// NewSession builds an untrained session from the config.
func NewSession(env Env, seed int64, opts ...session.Option) (*session.Session, error) {
	cfg := env.Config
	base := []session.Option{
		session.WithLogger(env.Logger),
		session.WithSeed(seed),
		session.WithTraining(cfg.Training.BatchSize, cfg.Training.NumBatches),
		session.WithPreprocess(canvas.Options{Normalize: cfg.Canvas.Normalize}),
	}
	return session.New(append(base, opts...)...)
}
