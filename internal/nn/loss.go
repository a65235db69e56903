package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/digitpad/internal/tensor"
)

// DefaultEpsilon bounds probabilities away from 0 and 1 before taking logs.
const DefaultEpsilon = 1e-7

// CategoricalCrossEntropy computes cross-entropy between softmax
// probabilities and one-hot labels.
//
// Mathematical Formulation:
//
//	Loss = -(1/N) * sum_n sum_i y[n,i] * log(clip(p[n,i]))
//
// Gradient w.r.t. the probabilities:
//
//	dL/dp[n,i] = -y[n,i] / (N * clip(p[n,i]))
//
// The gradient is taken w.r.t. the probabilities, not the logits; the
// softmax layer applies its own Jacobian on the way back.
type CategoricalCrossEntropy struct {
	Epsilon float32 // clip bound, DefaultEpsilon when zero
}

func (c CategoricalCrossEntropy) clip(p float32) float32 {
	eps := c.Epsilon
	if eps == 0 {
		eps = DefaultEpsilon
	}
	return min(max(p, eps), 1-eps)
}

func checkLossShapes(probs, labels *tensor.RawTensor) (rows, cols int, err error) {
	shape := probs.Shape()
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("cross-entropy: probabilities must be 2D [batch, classes], got %v", shape)
	}
	if !labels.Shape().Equal(shape) {
		return 0, 0, fmt.Errorf("cross-entropy: labels shape %v != probabilities shape %v", labels.Shape(), shape)
	}
	return shape[0], shape[1], nil
}

// Forward returns the mean loss over the batch.
func (c CategoricalCrossEntropy) Forward(probs, labels *tensor.RawTensor) (float32, error) {
	rows, _, err := checkLossShapes(probs, labels)
	if err != nil {
		return 0, err
	}
	p, y := probs.AsFloat32(), labels.AsFloat32()
	var total float64
	for i := range p {
		if y[i] != 0 {
			total -= float64(y[i]) * math.Log(float64(c.clip(p[i])))
		}
	}
	return float32(total / float64(rows)), nil
}

// Backward returns dL/dprobs, owned by s.
func (c CategoricalCrossEntropy) Backward(s *tensor.Scope, probs, labels *tensor.RawTensor) (*tensor.RawTensor, error) {
	rows, _, err := checkLossShapes(probs, labels)
	if err != nil {
		return nil, err
	}
	grad, err := s.NewRaw(probs.Shape().Clone())
	if err != nil {
		return nil, err
	}
	p, y, g := probs.AsFloat32(), labels.AsFloat32(), grad.AsFloat32()
	n := float32(rows)
	for i := range g {
		if y[i] != 0 {
			g[i] = -y[i] / (n * c.clip(p[i]))
		}
	}
	return grad, nil
}

func (c CategoricalCrossEntropy) String() string {
	return "categorical_crossentropy"
}
