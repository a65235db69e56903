// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package digitpad trains a small convolutional network to recognize
// handwritten digits and classifies drawings with it.
//
// A Session owns one model. Train it once, then classify drawing surfaces:
//
//	sess, err := digitpad.New(digitpad.WithSeed(42))
//	if err != nil { ... }
//	defer sess.Close()
//
//	source, err := digitpad.LoadMNIST("./mnist", digitpad.MNISTOptions{Shuffle: true})
//	if err != nil { ... }
//	if _, err := sess.Train(ctx, source); err != nil { ... }
//
//	raster, _ := digitpad.NewRaster(280, 280)
//	raster.Stroke(digitpad.Point{X: 140, Y: 40}, digitpad.Point{X: 140, Y: 240})
//	pred, err := sess.PredictSurface(raster)
//	fmt.Println(pred.Class, pred.Ranked())
//
// Predictions made before training completes fail with
// ErrInferenceNotReady. Predictions may run concurrently with each other
// and with training; a training step and a prediction never overlap.
package digitpad

import (
	"image"

	"github.com/born-ml/digitpad/internal/canvas"
	"github.com/born-ml/digitpad/internal/data"
	"github.com/born-ml/digitpad/internal/inference"
	"github.com/born-ml/digitpad/internal/logging"
	"github.com/born-ml/digitpad/internal/model"
	"github.com/born-ml/digitpad/internal/session"
	"github.com/born-ml/digitpad/internal/trainer"
)

// Session holds the model, its training state and the inference engine.
type Session = session.Session

// Option configures a Session.
type Option = session.Option

// Status is a snapshot of training progress.
type Status = session.Status

// Evaluation is the result of Session.Evaluate.
type Evaluation = session.Evaluation

// Model is the digit classifier network.
type Model = model.Model

// Step reports one completed training iteration.
type Step = trainer.Step

// Report summarizes a training run.
type Report = trainer.Report

// Prediction is the class probabilities of one image.
type Prediction = inference.Prediction

// Ranked is one class of a prediction, ordered by probability.
type Ranked = inference.Ranked

// Surface is a readable raster drawing area.
type Surface = canvas.Surface

// PreprocessOptions controls how surfaces are turned into model input.
type PreprocessOptions = canvas.Options

// Raster is an in-memory drawing surface.
type Raster = canvas.Raster

// RasterOption configures NewRaster.
type RasterOption = canvas.RasterOption

// Point is a stroke vertex in surface pixels.
type Point = canvas.Point

// Source hands out training batches.
type Source = data.Source

// TestSource additionally hands out held-out batches.
type TestSource = data.TestSource

// MNISTOptions configures LoadMNIST.
type MNISTOptions = data.MNISTOptions

// Errors.
var (
	ErrModelBuild        = model.ErrModelBuild
	ErrInputShape        = model.ErrInputShape
	ErrBatchFetch        = data.ErrBatchFetch
	ErrPreprocess        = canvas.ErrPreprocess
	ErrInferenceNotReady = inference.ErrInferenceNotReady
	ErrInvalidInput      = inference.ErrInvalidInput
	ErrTrainingStarted   = session.ErrTrainingStarted
	ErrClosed            = session.ErrClosed
)

// New builds the digit classifier and an untrained session around it.
func New(opts ...Option) (*Session, error) {
	return session.New(opts...)
}

// WithSeed makes weight initialization deterministic.
func WithSeed(seed int64) Option {
	return session.WithSeed(seed)
}

// WithTraining sets the batch size and the number of batches of Train.
// Zero values keep the defaults (64 and 150).
func WithTraining(batchSize, numBatches int) Option {
	return session.WithTraining(batchSize, numBatches)
}

// WithPreprocess sets how PredictSurface preprocesses surfaces.
func WithPreprocess(p PreprocessOptions) Option {
	return session.WithPreprocess(p)
}

// WithStepCallback is called after every training iteration.
func WithStepCallback(f func(Step)) Option {
	return session.WithStepCallback(f)
}

// WithLogLevel logs session events to stdout at the given level
// (debug, info, warn, error or off).
func WithLogLevel(level string) Option {
	return session.WithLogger(logging.New("digitpad", level))
}

// NewRaster creates a cleared width x height drawing surface: white ink on
// black.
func NewRaster(width, height int, opts ...RasterOption) (*Raster, error) {
	return canvas.NewRaster(width, height, opts...)
}

// WithStrokeWidth sets the brush diameter of a Raster in pixels.
func WithStrokeWidth(w float64) RasterOption {
	return canvas.WithStrokeWidth(w)
}

// FromImage wraps a decoded image as a Surface.
func FromImage(img image.Image) Surface {
	return canvas.FromImage(img)
}

// LoadMNIST reads the MNIST IDX files (plain or gzipped) from dir.
func LoadMNIST(dir string, opts MNISTOptions) (TestSource, error) {
	m, err := data.LoadMNIST(dir, opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewSynthetic returns a deterministic source of simple digit-like patterns.
func NewSynthetic(seed int64) TestSource {
	return data.NewSynthetic(seed)
}
