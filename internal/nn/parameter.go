package nn

import (
	"github.com/born-ml/digitpad/internal/tensor"
)

// Parameter represents a trainable weight tensor.
//
// The value lives for the lifetime of the model. The gradient is owned by
// the scope of the training step that produced it and is cleared with
// ZeroGrad before that scope is released.
type Parameter struct {
	name   string
	tensor *tensor.RawTensor
	grad   *tensor.RawTensor
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been computed since the last ZeroGrad.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// Release frees the parameter tensor. The model calls it on Close.
func (p *Parameter) Release() {
	p.grad = nil
	p.tensor.Release()
}
