package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/digitpad/internal/tensor"
)

// ReLUInPlace applies max(0, x) to every element of t.
func (cpu *CPUBackend) ReLUInPlace(t *tensor.RawTensor) {
	data := t.AsFloat32()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

// ReLUBackward masks grad with the activated output: dx = grad where out > 0.
func (cpu *CPUBackend) ReLUBackward(s *tensor.Scope, grad, out *tensor.RawTensor) *tensor.RawTensor {
	if !grad.Shape().Equal(out.Shape()) {
		panic(fmt.Sprintf("relu backward: grad shape %v != output shape %v", grad.Shape(), out.Shape()))
	}
	result := s.MustNew(grad.Shape().Clone())
	dst := result.AsFloat32()
	outData := out.AsFloat32()
	for i, g := range grad.AsFloat32() {
		if outData[i] > 0 {
			dst[i] = g
		}
	}
	return result
}

// SoftmaxInPlace normalizes every row of a [batch, classes] tensor.
//
// Uses the max-subtraction trick for numerical stability:
//
//	softmax(x)_i = exp(x_i - max(x)) / sum_j exp(x_j - max(x))
func (cpu *CPUBackend) SoftmaxInPlace(t *tensor.RawTensor) {
	shape := t.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("softmax: expected 2D input, got %v", shape))
	}
	rows, cols := shape[0], shape[1]
	data := t.AsFloat32()

	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxVal))
			row[i] = float32(e)
			sum += e
		}
		inv := float32(1 / sum)
		for i := range row {
			row[i] *= inv
		}
	}
}

// SoftmaxBackward propagates grad through a row-wise softmax with output probs.
//
// Uses the Jacobian-vector product of softmax:
//
//	dx_i = p_i * (g_i - sum_j g_j * p_j)
func (cpu *CPUBackend) SoftmaxBackward(s *tensor.Scope, grad, probs *tensor.RawTensor) *tensor.RawTensor {
	shape := probs.Shape()
	if len(shape) != 2 || !grad.Shape().Equal(shape) {
		panic(fmt.Sprintf("softmax backward: grad shape %v incompatible with probs %v", grad.Shape(), shape))
	}
	rows, cols := shape[0], shape[1]
	result := s.MustNew(shape.Clone())

	gradData := grad.AsFloat32()
	probData := probs.AsFloat32()
	dst := result.AsFloat32()

	for r := 0; r < rows; r++ {
		g := gradData[r*cols : (r+1)*cols]
		p := probData[r*cols : (r+1)*cols]
		var dot float32
		for i := range g {
			dot += g[i] * p[i]
		}
		d := dst[r*cols : (r+1)*cols]
		for i := range d {
			d[i] = p[i] * (g[i] - dot)
		}
	}
	return result
}
