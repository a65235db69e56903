package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/tensor"
)

// Dense is a fully connected layer with a fused activation.
//
// Performs: output = act(input @ weight + bias)
//
// Input shape:  [batch, in_features]
// Weight shape: [in_features, units]
// Bias shape:   [units]
// Output shape: [batch, units]
type Dense struct {
	name       string
	inFeatures int
	units      int
	activation Activation
	init       Initializer

	weight *Parameter
	bias   *Parameter

	backend *cpu.CPUBackend
}

type denseCache struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewDense creates a fully connected layer.
//
// Initialization:
//   - Weights: init with fanIn = inFeatures (VarianceScaling if nil)
//   - Bias: Zeros
func NewDense(
	name string,
	inFeatures, units int,
	activation Activation,
	init Initializer,
	rng *rand.Rand,
	backend *cpu.CPUBackend,
) (*Dense, error) {
	if inFeatures <= 0 || units <= 0 {
		return nil, fmt.Errorf("dense: invalid features in=%d, units=%d", inFeatures, units)
	}
	if err := activation.validFor(2); err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	if init == nil {
		init = VarianceScaling{}
	}

	weight, err := newParameter(name+".weight", tensor.Shape{inFeatures, units}, init, rng, inFeatures, units)
	if err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	bias, err := newParameter(name+".bias", tensor.Shape{units}, Zeros{}, rng, inFeatures, units)
	if err != nil {
		weight.Release()
		return nil, fmt.Errorf("dense: %w", err)
	}

	return &Dense{
		name:       name,
		inFeatures: inFeatures,
		units:      units,
		activation: activation,
		init:       init,
		weight:     weight,
		bias:       bias,
		backend:    backend,
	}, nil
}

// Name implements Layer.
func (d *Dense) Name() string { return d.name }

// OutputShape implements Layer.
func (d *Dense) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("dense expects a flat feature vector, got %v (add Flatten first)", in)
	}
	if in[0] != d.inFeatures {
		return nil, fmt.Errorf("dense expects %d input features, got %d", d.inFeatures, in[0])
	}
	return tensor.Shape{d.units}, nil
}

// Forward implements Layer.
func (d *Dense) Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, Cache) {
	out := d.backend.Dense(s, x, d.weight.Tensor(), d.bias.Tensor())
	d.activation.apply(d.backend, out)
	return out, &denseCache{input: x, output: out}
}

// Backward implements Layer.
func (d *Dense) Backward(s *tensor.Scope, cache Cache, grad *tensor.RawTensor, needInput bool) *tensor.RawTensor {
	dc := cache.(*denseCache)
	grad = d.activation.backward(d.backend, s, grad, dc.output)
	grads := d.backend.DenseBackward(s, dc.input, d.weight.Tensor(), grad, needInput)
	d.weight.SetGrad(grads.Weights)
	d.bias.SetGrad(grads.Bias)
	return grads.Input
}

// Parameters implements Layer.
func (d *Dense) Parameters() []*Parameter {
	return []*Parameter{d.weight, d.bias}
}

// Weight returns the weight parameter.
func (d *Dense) Weight() *Parameter { return d.weight }

// Bias returns the bias parameter.
func (d *Dense) Bias() *Parameter { return d.bias }

func (d *Dense) String() string {
	return fmt.Sprintf("Dense(units=%d, activation=%s, init=%s)", d.units, d.activation, d.init)
}
