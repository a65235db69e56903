// Package cpu implements the float32 CPU kernels of the digit classifier.
//
// Tensors use channels-last layout: images are [batch, height, width,
// channels] and convolution kernels are [kernel_h, kernel_w, in_channels,
// out_channels]. Every kernel allocates its outputs from the caller's
// tensor.Scope, so nothing outlives the iteration or prediction that
// produced it.
//
// Kernels panic on shape violations. Layers validate shapes when the model is
// built, so a panic here indicates a programming error rather than bad input.
package cpu

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/parallel"
)

// CPUBackend implements the layer kernels on CPU.
type CPUBackend struct {
	par parallel.Config
}

// New creates a CPU backend that parallelizes loops across physical cores.
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return fmt.Sprintf("CPU(%s, workers=%d)", parallel.CPUName(), cpu.par.NumWorkers)
}

// parallelFor runs f over [0, n) using the backend's parallel configuration.
func (cpu *CPUBackend) parallelFor(n int, f func(i int)) {
	parallel.For(n, f, cpu.par)
}
