// Package inference runs the trained classifier on preprocessed images.
package inference

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/born-ml/digitpad/internal/tensor"
)

// NumClasses is the length of every probability vector.
const NumClasses = 10

var (
	// ErrInferenceNotReady reports a prediction requested before training completed.
	ErrInferenceNotReady = errors.New("inference not ready: model is not trained yet")

	// ErrInvalidInput reports an input tensor of the wrong shape.
	ErrInvalidInput = errors.New("invalid inference input")
)

// Readiness gates predictions. session.Session implements it.
type Readiness interface {
	Trained() bool
}

// ReadyFunc adapts a function to Readiness.
type ReadyFunc func() bool

// Trained implements Readiness.
func (f ReadyFunc) Trained() bool { return f() }

// Forwarder runs the network forward. *model.Model implements it.
type Forwarder interface {
	Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, error)
}

// Engine runs read-only forward passes behind a readiness gate.
type Engine struct {
	model Forwarder
	ready Readiness
	lock  sync.Locker
}

// Option configures an Engine.
type Option func(*Engine)

// WithLock makes every prediction hold l, typically the read side of the
// lock training steps write under.
func WithLock(l sync.Locker) Option {
	return func(e *Engine) {
		e.lock = l
	}
}

// New creates an engine over a model.
func New(m Forwarder, ready Readiness, opts ...Option) *Engine {
	e := &Engine{model: m, ready: ready}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict classifies one image shaped (28,28,1) or (1,28,28,1).
//
// It fails with ErrInferenceNotReady until training has completed. Every
// intermediate tensor is released before Predict returns; x stays owned by
// the caller.
func (e *Engine) Predict(x *tensor.RawTensor) (Prediction, error) {
	if !e.Ready() {
		return Prediction{}, ErrInferenceNotReady
	}
	if x == nil {
		return Prediction{}, fmt.Errorf("%w: nil tensor", ErrInvalidInput)
	}
	shape := x.Shape()
	if len(shape) == 3 {
		shape = append(tensor.Shape{1}, shape...)
	}
	if len(shape) != 4 || shape[0] != 1 {
		return Prediction{}, fmt.Errorf("%w: want one image, got shape %v", ErrInvalidInput, x.Shape())
	}
	preds, err := e.predict(x, shape)
	if err != nil {
		return Prediction{}, err
	}
	return preds[0], nil
}

// PredictBatch classifies images shaped (N,28,28,1).
func (e *Engine) PredictBatch(x *tensor.RawTensor) ([]Prediction, error) {
	if !e.Ready() {
		return nil, ErrInferenceNotReady
	}
	if x == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrInvalidInput)
	}
	if len(x.Shape()) != 4 {
		return nil, fmt.Errorf("%w: want (N,28,28,1), got shape %v", ErrInvalidInput, x.Shape())
	}
	return e.predict(x, x.Shape())
}

// Ready reports whether predictions are permitted.
func (e *Engine) Ready() bool {
	return e.ready != nil && e.ready.Trained()
}

func (e *Engine) predict(x *tensor.RawTensor, shape tensor.Shape) ([]Prediction, error) {
	if e.lock != nil {
		e.lock.Lock()
		defer e.lock.Unlock()
		// The gate may have closed while waiting for the lock.
		if !e.Ready() {
			return nil, ErrInferenceNotReady
		}
	}

	return tensor.TidyValue(func(s *tensor.Scope) ([]Prediction, error) {
		input, err := s.Reshape(x, shape)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		probs, err := e.model.Forward(s, input)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if !probs.Shape().Equal(tensor.Shape{shape[0], NumClasses}) {
			return nil, fmt.Errorf("model produced shape %v, want (%d,%d)", probs.Shape(), shape[0], NumClasses)
		}

		data := probs.AsFloat32()
		preds := make([]Prediction, shape[0])
		for i := range preds {
			copy(preds[i].Probabilities[:], data[i*NumClasses:(i+1)*NumClasses])
			preds[i].Class = Argmax(preds[i].Probabilities[:])
		}
		return preds, nil
	})
}

// Prediction is a probability per class plus the top-1 class.
type Prediction struct {
	Probabilities [NumClasses]float32
	Class         int
}

// Percentages returns every probability times 100, rounded to two decimal
// places half away from zero.
func (p Prediction) Percentages() [NumClasses]float64 {
	var out [NumClasses]float64
	for i, v := range p.Probabilities {
		out[i] = RoundPercent(v)
	}
	return out
}

// Ranked is one entry of Prediction.Ranked.
type Ranked struct {
	Class       int     `json:"class"`
	Probability float32 `json:"probability"`
	Percent     float64 `json:"percent"`
}

// Ranked lists all classes by descending probability; ties keep the lower
// class first.
func (p Prediction) Ranked() []Ranked {
	out := make([]Ranked, NumClasses)
	for i, v := range p.Probabilities {
		out[i] = Ranked{Class: i, Probability: v, Percent: RoundPercent(v)}
	}
	slices.SortStableFunc(out, func(a, b Ranked) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Sum returns the sum of all probabilities.
func (p Prediction) Sum() float64 {
	var sum float64
	for _, v := range p.Probabilities {
		sum += float64(v)
	}
	return sum
}

// RoundPercent converts a probability to a percentage rounded to 2 decimals.
func RoundPercent(p float32) float64 {
	return math.Round(float64(p)*100*100) / 100
}

// Argmax returns the index of the largest value; the lowest index wins ties.
// It returns -1 for an empty slice.
func Argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}
