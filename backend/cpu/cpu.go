// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend the layers run on.
//
// Convolutions use im2col followed by a matrix multiply. Work is split across
// goroutines by output channel or by sample, sized from the CPU topology.
//
//	backend := cpu.New()                                 // all cores
//	backend = cpu.NewWithConfig(cpu.Sequential())        // one goroutine
package cpu

import (
	internalcpu "github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/parallel"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Config controls how kernels are split across goroutines.
type Config = parallel.Config

// New creates a CPU backend sized for this machine.
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with explicit parallelism.
func NewWithConfig(cfg Config) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultConfig returns the parallelism New uses.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// Sequential returns a config that runs every kernel on the calling goroutine.
func Sequential() Config {
	return parallel.Sequential()
}
