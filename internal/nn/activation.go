package nn

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/tensor"
)

// Activation is an activation fused into a Conv2D or Dense layer.
type Activation int

// Supported activations.
const (
	None Activation = iota
	ReLU
	Softmax
)

func (a Activation) String() string {
	switch a {
	case None:
		return "linear"
	case ReLU:
		return "relu"
	case Softmax:
		return "softmax"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// validFor reports whether a can be applied to outputs of the given rank
// (batch dimension included).
func (a Activation) validFor(rank int) error {
	switch a {
	case None, ReLU:
		return nil
	case Softmax:
		if rank != 2 {
			return fmt.Errorf("softmax needs a 2D [batch, classes] output, got rank %d", rank)
		}
		return nil
	default:
		return fmt.Errorf("unknown activation %d", int(a))
	}
}

// apply runs the activation in place on out.
func (a Activation) apply(backend *cpu.CPUBackend, out *tensor.RawTensor) {
	switch a {
	case ReLU:
		backend.ReLUInPlace(out)
	case Softmax:
		backend.SoftmaxInPlace(out)
	}
}

// backward maps the gradient w.r.t. the activated output to the gradient
// w.r.t. the pre-activation, using the activated output.
func (a Activation) backward(backend *cpu.CPUBackend, s *tensor.Scope, grad, out *tensor.RawTensor) *tensor.RawTensor {
	switch a {
	case ReLU:
		return backend.ReLUBackward(s, grad, out)
	case Softmax:
		return backend.SoftmaxBackward(s, grad, out)
	default:
		return grad
	}
}
