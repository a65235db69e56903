package nn

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Flatten collapses every non-batch dimension into one.
//
// Channels-last order is preserved: [N, H, W, C] becomes [N, H*W*C] with
// index (h*W + w)*C + c. The output is a view sharing the input buffer.
type Flatten struct {
	name string
}

// NewFlatten creates a flatten layer.
func NewFlatten(name string) *Flatten {
	return &Flatten{name: name}
}

// Name implements Layer.
func (f *Flatten) Name() string { return f.name }

// OutputShape implements Layer.
func (f *Flatten) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("flatten expects at least one feature dimension")
	}
	return tensor.Shape{in.NumElements()}, nil
}

// Forward implements Layer.
func (f *Flatten) Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, Cache) {
	shape := x.Shape()
	out, err := s.Reshape(x, tensor.Shape{shape[0], shape[1:].NumElements()})
	if err != nil {
		panic(fmt.Sprintf("flatten: %v", err))
	}
	return out, shape
}

// Backward implements Layer.
func (f *Flatten) Backward(s *tensor.Scope, cache Cache, grad *tensor.RawTensor, needInput bool) *tensor.RawTensor {
	if !needInput {
		return nil
	}
	out, err := s.Reshape(grad, cache.(tensor.Shape))
	if err != nil {
		panic(fmt.Sprintf("flatten backward: %v", err))
	}
	return out
}

// Parameters implements Layer.
func (f *Flatten) Parameters() []*Parameter { return nil }

func (f *Flatten) String() string { return "Flatten()" }
