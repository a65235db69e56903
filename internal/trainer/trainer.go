// Package trainer runs the mini-batch training loop.
//
// Each iteration fetches one batch, reshapes it to the model input layout,
// runs exactly one gradient step and releases every tensor it created
// before the next iteration begins. Iterations are strictly sequential and
// the loop yields to the scheduler after each one.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/born-ml/digitpad/internal/data"
	"github.com/born-ml/digitpad/internal/logging"
	"github.com/born-ml/digitpad/internal/tensor"
)

// Defaults of the digit classifier training run.
const (
	DefaultBatchSize  = 64
	DefaultNumBatches = 150
)

// Stepper runs one gradient step. *model.Model implements it.
type Stepper interface {
	TrainStep(s *tensor.Scope, xs, ys *tensor.RawTensor) (float32, error)
}

// StepFunc adapts a function to Stepper.
type StepFunc func(s *tensor.Scope, xs, ys *tensor.RawTensor) (float32, error)

// TrainStep implements Stepper.
func (f StepFunc) TrainStep(s *tensor.Scope, xs, ys *tensor.RawTensor) (float32, error) {
	return f(s, xs, ys)
}

// Step describes one finished iteration.
type Step struct {
	Iteration int // 1-based
	Total     int
	Loss      float32
	Elapsed   time.Duration
}

// Config controls a training run.
type Config struct {
	BatchSize  int // DefaultBatchSize when zero
	NumBatches int // DefaultNumBatches when zero

	// InputShape is the per-example image shape, (28,28,1) when nil.
	InputShape tensor.Shape

	// OnStep is called after every iteration, outside the iteration's scope.
	OnStep func(Step)

	// Logger receives per-step debug lines. Nothing is logged when nil.
	Logger *log.Logger
}

// Report summarizes a finished run.
type Report struct {
	Iterations int
	Examples   int
	FinalLoss  float32
	Elapsed    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.NumBatches == 0 {
		c.NumBatches = DefaultNumBatches
	}
	if c.InputShape == nil {
		c.InputShape = tensor.Shape{data.ImageSize, data.ImageSize, 1}
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	return c
}

// Run trains for cfg.NumBatches iterations.
//
// ctx is handed to the batch source only; once an iteration starts it runs
// to completion. The first error aborts the loop and is returned as is,
// together with the report of the iterations that completed.
func Run(ctx context.Context, stepper Stepper, source data.Source, cfg Config) (Report, error) {
	cfg = cfg.withDefaults()
	if cfg.BatchSize < 0 || cfg.NumBatches < 0 {
		return Report{}, fmt.Errorf("trainer: invalid batch size %d or batch count %d", cfg.BatchSize, cfg.NumBatches)
	}

	var report Report
	begin := time.Now()
	for i := 1; i <= cfg.NumBatches; i++ {
		stepBegin := time.Now()
		loss, err := tensor.TidyValue(func(s *tensor.Scope) (float32, error) {
			xs, ys, err := fetch(ctx, s, source, cfg)
			if err != nil {
				return 0, err
			}
			return stepper.TrainStep(s, xs, ys)
		})
		if err != nil {
			report.Elapsed = time.Since(begin)
			return report, fmt.Errorf("iteration %d/%d: %w", i, cfg.NumBatches, err)
		}

		report.Iterations = i
		report.Examples += cfg.BatchSize
		report.FinalLoss = loss

		step := Step{Iteration: i, Total: cfg.NumBatches, Loss: loss, Elapsed: time.Since(stepBegin)}
		cfg.Logger.Debugf("step %d/%d: loss = %.4f (%v)", step.Iteration, step.Total, step.Loss, step.Elapsed)
		if cfg.OnStep != nil {
			cfg.OnStep(step)
		}

		runtime.Gosched()
	}
	report.Elapsed = time.Since(begin)
	return report, nil
}

// fetch pulls one batch into s and reshapes it to (N, InputShape...) and (N, 10).
func fetch(ctx context.Context, s *tensor.Scope, source data.Source, cfg Config) (xs, ys *tensor.RawTensor, err error) {
	batch, err := source.NextTrainBatch(ctx, cfg.BatchSize)
	s.Track(batch.Images, batch.Labels)
	if err != nil {
		if errors.Is(err, data.ErrBatchFetch) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", data.ErrBatchFetch, err)
	}
	if batch.Images == nil || batch.Labels == nil {
		return nil, nil, fmt.Errorf("%w: source returned an empty batch", data.ErrBatchFetch)
	}

	n := cfg.BatchSize
	if got := batch.Size(); got != n || len(batch.Labels.Shape()) == 0 || batch.Labels.Shape()[0] != n {
		return nil, nil, fmt.Errorf("%w: asked for %d examples, got images %v and labels %v",
			data.ErrBatchFetch, n, batch.Images.Shape(), batch.Labels.Shape())
	}
	xs, err = s.Reshape(batch.Images, append(tensor.Shape{n}, cfg.InputShape...))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: images %v cannot be reshaped to %d examples of %v: %w",
			data.ErrBatchFetch, batch.Images.Shape(), n, cfg.InputShape, err)
	}
	ys, err = s.Reshape(batch.Labels, tensor.Shape{n, data.NumClasses})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: labels %v cannot be reshaped to (%d,%d): %w",
			data.ErrBatchFetch, batch.Labels.Shape(), n, data.NumClasses, err)
	}
	return xs, ys, nil
}
