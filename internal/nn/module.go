// Package nn implements the layers of the digit classifier.
//
// This package provides:
//   - Layer interface: forward pass, backward pass and parameters
//   - Parameter: a persistent weight tensor plus its per-step gradient
//   - Conv2D, MaxPool2D, Flatten, Dense layers
//   - Fused activations (ReLU, Softmax) and variance-scaling initialization
//   - Categorical cross-entropy loss
//
// Layers are stateless during a pass: Forward returns a Cache holding the
// activations its Backward needs, so inference can run concurrently with
// itself without touching shared state.
package nn

import (
	"github.com/born-ml/digitpad/internal/tensor"
)

// Cache holds the values a layer's Forward saves for its Backward.
// Each layer defines its own concrete type; nil when nothing is needed.
type Cache any

// Layer is the base interface for all network components.
//
// Shapes passed to OutputShape exclude the batch dimension. Tensors passed
// to Forward and Backward include it.
type Layer interface {
	// Name returns a short layer name such as "conv2d_1".
	Name() string

	// OutputShape returns the per-example output shape for a per-example
	// input shape, or an error if the layer cannot accept it.
	OutputShape(in tensor.Shape) (tensor.Shape, error)

	// Forward computes the output for a batch. Every tensor it creates is
	// owned by s.
	Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, Cache)

	// Backward takes the gradient w.r.t. the layer output, stores parameter
	// gradients with SetGrad, and returns the gradient w.r.t. the input
	// when needInput is set (nil otherwise).
	Backward(s *tensor.Scope, c Cache, grad *tensor.RawTensor, needInput bool) *tensor.RawTensor

	// Parameters returns all trainable parameters of this layer.
	Parameters() []*Parameter
}
