// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizer the digit classifier trains with.
//
// Optimizers read the gradients stored on each parameter, so a training step
// is: compute gradients, Step, ZeroGrad.
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: optim.DefaultLR})
//	// ... backward pass sets parameter gradients ...
//	optimizer.Step()
//	optimizer.ZeroGrad()
package optim

import (
	"github.com/born-ml/digitpad/internal/nn"
	"github.com/born-ml/digitpad/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// DefaultLR is the learning rate of the digit classifier.
const DefaultLR = optim.DefaultLR

// NewSGD creates a new SGD optimizer over params.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}
