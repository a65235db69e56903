package nn

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/tensor"
)

// MaxPool2D downsamples each channel by taking the maximum of every window.
//
// Input shape:  [batch, height, width, channels]
// Output shape: [batch, (height-window)/stride+1, (width-window)/stride+1, channels]
//
// MaxPool2D has no trainable parameters.
type MaxPool2D struct {
	name    string
	window  int
	stride  int
	backend *cpu.CPUBackend
}

type maxPool2DCache struct {
	inputShape tensor.Shape
	argmax     []int
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(name string, window, stride int, backend *cpu.CPUBackend) (*MaxPool2D, error) {
	if window <= 0 {
		return nil, fmt.Errorf("maxpool2d: invalid window %d", window)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("maxpool2d: invalid stride %d", stride)
	}
	return &MaxPool2D{name: name, window: window, stride: stride, backend: backend}, nil
}

// Name implements Layer.
func (m *MaxPool2D) Name() string { return m.name }

// OutputShape implements Layer.
func (m *MaxPool2D) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("maxpool2d expects [height, width, channels], got %v", in)
	}
	if m.window > in[0] || m.window > in[1] {
		return nil, fmt.Errorf("maxpool2d window %dx%d larger than input %dx%d", m.window, m.window, in[0], in[1])
	}
	return tensor.Shape{
		(in[0]-m.window)/m.stride + 1,
		(in[1]-m.window)/m.stride + 1,
		in[2],
	}, nil
}

// Forward implements Layer.
func (m *MaxPool2D) Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, Cache) {
	out, argmax := m.backend.MaxPool2D(s, x, m.window, m.stride)
	return out, &maxPool2DCache{inputShape: x.Shape(), argmax: argmax}
}

// Backward implements Layer.
func (m *MaxPool2D) Backward(s *tensor.Scope, cache Cache, grad *tensor.RawTensor, needInput bool) *tensor.RawTensor {
	if !needInput {
		return nil
	}
	mc := cache.(*maxPool2DCache)
	return m.backend.MaxPool2DBackward(s, grad, mc.argmax, mc.inputShape)
}

// Parameters implements Layer.
func (m *MaxPool2D) Parameters() []*Parameter { return nil }

func (m *MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(window=%dx%d, stride=%d)", m.window, m.window, m.stride)
}
