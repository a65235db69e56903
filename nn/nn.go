// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers the digit classifier is built from.
//
// # Overview
//
// This package contains:
//   - Layers: Conv2D, MaxPool2D, Flatten, Dense
//   - Activations fused into Conv2D and Dense: None, ReLU, Softmax
//   - Loss: CategoricalCrossEntropy
//   - Initialization: VarianceScaling, Zeros
//
// Layers work on NHWC tensors. Forward returns the output together with a
// Cache, and Backward consumes that cache, so a layer holds no per-call
// state and Forward may run concurrently for inference.
//
// # Basic Usage
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewSource(1))
//	conv, err := nn.NewConv2D("conv", 1, 8, 5, 1, nn.ReLU, nn.VarianceScaling{Scale: 1}, rng, backend)
//	out, cache := conv.Forward(scope, x)
package nn

import (
	"math/rand"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/nn"
	"github.com/born-ml/digitpad/internal/tensor"
)

// Layer is a differentiable layer.
type Layer = nn.Layer

// Cache is what Forward hands to Backward.
type Cache = nn.Cache

// Parameter is a trainable tensor and its gradient.
type Parameter = nn.Parameter

// Activation is an activation fused into a Conv2D or Dense layer.
type Activation = nn.Activation

// Supported activations.
const (
	None    Activation = nn.None
	ReLU    Activation = nn.ReLU
	Softmax Activation = nn.Softmax
)

// Initializer fills a freshly allocated weight.
type Initializer = nn.Initializer

// VarianceScaling draws from a normal distribution with variance
// Scale/fanIn, truncated at two standard deviations.
type VarianceScaling = nn.VarianceScaling

// Zeros initializes with zeros. Biases use it.
type Zeros = nn.Zeros

// CategoricalCrossEntropy is the loss of one-hot labels against softmax
// probabilities.
type CategoricalCrossEntropy = nn.CategoricalCrossEntropy

// DefaultEpsilon is the probability clip of CategoricalCrossEntropy.
const DefaultEpsilon = nn.DefaultEpsilon

// Layer types.
type (
	Conv2D    = nn.Conv2D
	MaxPool2D = nn.MaxPool2D
	Flatten   = nn.Flatten
	Dense     = nn.Dense
)

// NewConv2D creates a valid (unpadded) 2D convolution with a
// [kernel, kernel, inChannels, filters] weight.
func NewConv2D(
	name string,
	inChannels, filters, kernel, stride int,
	act Activation,
	init Initializer,
	rng *rand.Rand,
	backend *cpu.CPUBackend,
) (*Conv2D, error) {
	return nn.NewConv2D(name, inChannels, filters, kernel, stride, act, init, rng, backend)
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(name string, window, stride int, backend *cpu.CPUBackend) (*MaxPool2D, error) {
	return nn.NewMaxPool2D(name, window, stride, backend)
}

// NewFlatten creates a layer that flattens everything but the batch dimension.
func NewFlatten(name string) *Flatten {
	return nn.NewFlatten(name)
}

// NewDense creates a fully connected layer.
func NewDense(
	name string,
	inFeatures, units int,
	act Activation,
	init Initializer,
	rng *rand.Rand,
	backend *cpu.CPUBackend,
) (*Dense, error) {
	return nn.NewDense(name, inFeatures, units, act, init, rng, backend)
}

// NewParameter wraps a tensor as a trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}
