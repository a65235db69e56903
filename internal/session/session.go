// Package session owns one model and its training state.
//
// A Session is created at startup, trained exactly once, then serves
// predictions until Close. Training steps hold the write side of the
// session lock and predictions the read side, so a prediction never sees
// a half-applied update.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/born-ml/digitpad/internal/canvas"
	"github.com/born-ml/digitpad/internal/data"
	"github.com/born-ml/digitpad/internal/inference"
	"github.com/born-ml/digitpad/internal/logging"
	"github.com/born-ml/digitpad/internal/model"
	"github.com/born-ml/digitpad/internal/tensor"
	"github.com/born-ml/digitpad/internal/trainer"
)

var (
	// ErrTrainingStarted reports a second Train call on the same session.
	ErrTrainingStarted = errors.New("training already started")

	// ErrClosed reports use of a closed session.
	ErrClosed = errors.New("session closed")
)

// Session holds the model, its training state and the inference engine.
type Session struct {
	id     string
	logger *log.Logger
	opts   options

	mu     sync.RWMutex // guards model weights
	model  *model.Model
	engine *inference.Engine

	started atomic.Bool
	trained atomic.Bool
	closed  atomic.Bool
	done    chan struct{}

	progressMu sync.Mutex
	progress   Status
	trainErr   error
}

type options struct {
	logger       *log.Logger
	modelOptions []model.Option
	batchSize    int
	numBatches   int
	preprocess   canvas.Options
	onStep       func(trainer.Step)
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger. Logging is discarded by default.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSeed makes weight initialization deterministic.
func WithSeed(seed int64) Option {
	return func(o *options) { o.modelOptions = append(o.modelOptions, model.WithSeed(seed)) }
}

// WithModelOptions passes options through to model.New.
func WithModelOptions(opts ...model.Option) Option {
	return func(o *options) { o.modelOptions = append(o.modelOptions, opts...) }
}

// WithTraining sets the batch size and number of batches of Train.
// Zero values keep the defaults (64 and 150).
func WithTraining(batchSize, numBatches int) Option {
	return func(o *options) {
		o.batchSize = batchSize
		o.numBatches = numBatches
	}
}

// WithPreprocess sets the options PredictSurface preprocesses with.
func WithPreprocess(p canvas.Options) Option {
	return func(o *options) { o.preprocess = p }
}

// WithStepCallback is called after every training iteration.
func WithStepCallback(f func(trainer.Step)) Option {
	return func(o *options) { o.onStep = f }
}

// New builds the digit classifier and an untrained session around it.
func New(opts ...Option) (*Session, error) {
	o := options{
		batchSize:  trainer.DefaultBatchSize,
		numBatches: trainer.DefaultNumBatches,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.batchSize == 0 {
		o.batchSize = trainer.DefaultBatchSize
	}
	if o.numBatches == 0 {
		o.numBatches = trainer.DefaultNumBatches
	}

	m, err := model.New(o.modelOptions...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		logger: o.logger,
		opts:   o,
		model:  m,
		done:   make(chan struct{}),
	}
	s.engine = inference.New(m, s, inference.WithLock(s.mu.RLocker()))
	s.progress = Status{ID: s.id, NumBatches: o.numBatches, BatchSize: o.batchSize}

	s.logger.Infof("session %s: model created (%d parameters)", s.id, m.NumParameters())
	s.logger.Debugf("session %s: model summary\n%s", s.id, m.Summary())
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the session's model. Callers must not train it directly.
func (s *Session) Model() *model.Model { return s.model }

// Trained reports whether training completed successfully. It implements
// inference.Readiness. Once true it never reverts, except that a closed
// session reports false.
func (s *Session) Trained() bool {
	return s.trained.Load() && !s.closed.Load()
}

// Done is closed when Train returns, successfully or not.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended training, if any.
func (s *Session) Err() error {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	return s.trainErr
}

// Train runs the training loop against source. It may be called once.
//
// ctx only reaches the batch source; a running step is never interrupted.
// On success the training state becomes true and Done is closed.
func (s *Session) Train(ctx context.Context, source data.Source) (trainer.Report, error) {
	if s.closed.Load() {
		return trainer.Report{}, ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return trainer.Report{}, ErrTrainingStarted
	}
	defer close(s.done)

	s.setProgress(func(st *Status) { st.Started = true })
	s.logger.Infof("session %s: start training (%d batches of %d)", s.id, s.opts.numBatches, s.opts.batchSize)

	stepper := trainer.StepFunc(func(sc *tensor.Scope, xs, ys *tensor.RawTensor) (float32, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed.Load() {
			return 0, ErrClosed
		}
		return s.model.TrainStep(sc, xs, ys)
	})

	report, err := trainer.Run(ctx, stepper, source, trainer.Config{
		BatchSize:  s.opts.batchSize,
		NumBatches: s.opts.numBatches,
		Logger:     s.logger,
		OnStep: func(step trainer.Step) {
			s.setProgress(func(st *Status) {
				st.Iteration = step.Iteration
				st.Loss = step.Loss
			})
			if s.opts.onStep != nil {
				s.opts.onStep(step)
			}
		},
	})
	if err != nil {
		s.progressMu.Lock()
		s.trainErr = err
		s.progressMu.Unlock()
		s.logger.Errorf("session %s: training failed: %v", s.id, err)
		return report, fmt.Errorf("session %s: %w", s.id, err)
	}

	s.trained.Store(true)
	s.setProgress(func(st *Status) { st.Trained = true })
	s.logger.Infof("session %s: training complete (loss %.4f, %v)", s.id, report.FinalLoss, report.Elapsed)
	return report, nil
}

// Predict classifies one preprocessed image. See inference.Engine.Predict.
func (s *Session) Predict(x *tensor.RawTensor) (inference.Prediction, error) {
	if s.closed.Load() {
		return inference.Prediction{}, ErrClosed
	}
	return s.engine.Predict(x)
}

// PredictSurface preprocesses a drawing surface and classifies it.
func (s *Session) PredictSurface(surface canvas.Surface) (inference.Prediction, error) {
	if s.closed.Load() {
		return inference.Prediction{}, ErrClosed
	}
	if !s.engine.Ready() {
		return inference.Prediction{}, inference.ErrInferenceNotReady
	}
	x, err := canvas.PreprocessWith(surface, s.opts.preprocess)
	if err != nil {
		return inference.Prediction{}, err
	}
	defer x.Release()
	return s.engine.Predict(x)
}

// Close releases the model. Later calls fail with ErrClosed.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.Close()
	s.logger.Infof("session %s: closed", s.id)
}

func (s *Session) setProgress(f func(*Status)) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	f(&s.progress)
}
