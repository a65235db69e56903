package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/tensor"
)

// Conv2D is a 2D convolutional layer with a fused activation.
//
// Performs convolution: output = act(Conv2D(input, weight) + bias)
//
// Input shape:  [batch, height, width, in_channels]
// Weight shape: [kernel, kernel, in_channels, filters]
// Bias shape:   [filters]
// Output shape: [batch, out_h, out_w, filters]
//
// Where:
//
//	out_h = (height - kernel) / stride + 1
//	out_w = (width - kernel) / stride + 1
//
// No padding is applied.
//
// Example:
//
//	// 1 channel -> 8 filters, 5x5 kernel
//	conv, err := nn.NewConv2D("conv2d_1", 1, 8, 5, 1, nn.ReLU, nn.VarianceScaling{}, rng, backend)
//	out, cache := conv.Forward(s, input) // [N,28,28,1] -> [N,24,24,8]
type Conv2D struct {
	name       string
	inChannels int
	filters    int
	kernel     int
	stride     int
	activation Activation
	init       Initializer

	weight *Parameter
	bias   *Parameter

	backend *cpu.CPUBackend
}

type conv2DCache struct {
	inputShape tensor.Shape
	cols       *tensor.RawTensor
	output     *tensor.RawTensor
}

// NewConv2D creates a convolutional layer.
//
// Initialization:
//   - Weights: init with fanIn = kernel*kernel*inChannels (VarianceScaling if nil)
//   - Bias: Zeros
func NewConv2D(
	name string,
	inChannels, filters, kernel, stride int,
	activation Activation,
	init Initializer,
	rng *rand.Rand,
	backend *cpu.CPUBackend,
) (*Conv2D, error) {
	if inChannels <= 0 || filters <= 0 {
		return nil, fmt.Errorf("conv2d: invalid channels in=%d, filters=%d", inChannels, filters)
	}
	if kernel <= 0 {
		return nil, fmt.Errorf("conv2d: invalid kernel size %d", kernel)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("conv2d: invalid stride %d", stride)
	}
	if err := activation.validFor(4); err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	if init == nil {
		init = VarianceScaling{}
	}

	fanIn := kernel * kernel * inChannels
	fanOut := kernel * kernel * filters
	weight, err := newParameter(name+".weight", tensor.Shape{kernel, kernel, inChannels, filters}, init, rng, fanIn, fanOut)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	bias, err := newParameter(name+".bias", tensor.Shape{filters}, Zeros{}, rng, fanIn, fanOut)
	if err != nil {
		weight.Release()
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	return &Conv2D{
		name:       name,
		inChannels: inChannels,
		filters:    filters,
		kernel:     kernel,
		stride:     stride,
		activation: activation,
		init:       init,
		weight:     weight,
		bias:       bias,
		backend:    backend,
	}, nil
}

// Name implements Layer.
func (c *Conv2D) Name() string { return c.name }

// OutputShape implements Layer. in is [height, width, channels].
func (c *Conv2D) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("conv2d expects [height, width, channels], got %v", in)
	}
	if in[2] != c.inChannels {
		return nil, fmt.Errorf("conv2d expects %d input channels, got %d", c.inChannels, in[2])
	}
	if c.kernel > in[0] || c.kernel > in[1] {
		return nil, fmt.Errorf("conv2d kernel %dx%d larger than input %dx%d", c.kernel, c.kernel, in[0], in[1])
	}
	return tensor.Shape{
		(in[0]-c.kernel)/c.stride + 1,
		(in[1]-c.kernel)/c.stride + 1,
		c.filters,
	}, nil
}

// Forward implements Layer.
func (c *Conv2D) Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, Cache) {
	out, cols := c.backend.Conv2D(s, x, c.weight.Tensor(), c.bias.Tensor(), c.stride)
	c.activation.apply(c.backend, out)
	return out, &conv2DCache{inputShape: x.Shape(), cols: cols, output: out}
}

// Backward implements Layer.
func (c *Conv2D) Backward(s *tensor.Scope, cache Cache, grad *tensor.RawTensor, needInput bool) *tensor.RawTensor {
	cc := cache.(*conv2DCache)
	grad = c.activation.backward(c.backend, s, grad, cc.output)
	grads := c.backend.Conv2DBackward(s, cc.cols, c.weight.Tensor(), grad, cc.inputShape, c.stride, needInput)
	c.weight.SetGrad(grads.Kernel)
	c.bias.SetGrad(grads.Bias)
	return grads.Input
}

// Parameters implements Layer.
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// Weight returns the kernel parameter.
func (c *Conv2D) Weight() *Parameter { return c.weight }

// Bias returns the bias parameter.
func (c *Conv2D) Bias() *Parameter { return c.bias }

func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(filters=%d, kernel=%dx%d, stride=%d, activation=%s, init=%s)",
		c.filters, c.kernel, c.kernel, c.stride, c.activation, c.init)
}
