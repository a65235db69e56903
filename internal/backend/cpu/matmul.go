package cpu

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Dense computes x @ weights + bias.
//
// Shapes: x [batch, in], weights [in, units], bias [units] (may be nil),
// output [batch, units].
func (cpu *CPUBackend) Dense(s *tensor.Scope, x, weights, bias *tensor.RawTensor) *tensor.RawTensor {
	xShape, wShape := x.Shape(), weights.Shape()
	if len(xShape) != 2 || len(wShape) != 2 {
		panic(fmt.Sprintf("dense: expected 2D operands, got %v and %v", xShape, wShape))
	}
	M, K, N := xShape[0], xShape[1], wShape[1]
	if wShape[0] != K {
		panic(fmt.Sprintf("dense: inner dimensions mismatch %v @ %v", xShape, wShape))
	}
	if bias != nil && bias.NumElements() != N {
		panic(fmt.Sprintf("dense: bias has %d elements, want %d", bias.NumElements(), N))
	}

	out := s.MustNew(tensor.Shape{M, N})
	xData, wData, outData := x.AsFloat32(), weights.AsFloat32(), out.AsFloat32()
	var biasData []float32
	if bias != nil {
		biasData = bias.AsFloat32()
	}

	cpu.parallelFor(M, func(i int) {
		outRow := outData[i*N : (i+1)*N]
		if biasData != nil {
			copy(outRow, biasData)
		}
		for k, a := range xData[i*K : (i+1)*K] {
			if a == 0 {
				continue
			}
			for j, w := range wData[k*N : (k+1)*N] {
				outRow[j] += a * w
			}
		}
	})
	return out
}

// DenseGrads holds the gradients produced by DenseBackward.
type DenseGrads struct {
	Input   *tensor.RawTensor // [batch, in], nil unless requested
	Weights *tensor.RawTensor // [in, units]
	Bias    *tensor.RawTensor // [units]
}

// DenseBackward computes gradients of x @ weights + bias.
//
//	dWeights = x^T @ grad
//	dBias    = sum over rows of grad
//	dInput   = grad @ weights^T
func (cpu *CPUBackend) DenseBackward(s *tensor.Scope, x, weights, grad *tensor.RawTensor, needInput bool) DenseGrads {
	xShape, wShape, gShape := x.Shape(), weights.Shape(), grad.Shape()
	M, K, N := xShape[0], xShape[1], wShape[1]
	if len(gShape) != 2 || gShape[0] != M || gShape[1] != N {
		panic(fmt.Sprintf("dense backward: grad shape %v, want [%d %d]", gShape, M, N))
	}

	xData, wData, gData := x.AsFloat32(), weights.AsFloat32(), grad.AsFloat32()
	grads := DenseGrads{
		Weights: s.MustNew(tensor.Shape{K, N}),
		Bias:    s.MustNew(tensor.Shape{N}),
	}

	wGrad := grads.Weights.AsFloat32()
	cpu.parallelFor(K, func(k int) {
		dst := wGrad[k*N : (k+1)*N]
		for i := 0; i < M; i++ {
			a := xData[i*K+k]
			if a == 0 {
				continue
			}
			for j, g := range gData[i*N : (i+1)*N] {
				dst[j] += a * g
			}
		}
	})

	bGrad := grads.Bias.AsFloat32()
	for i := 0; i < M; i++ {
		for j, g := range gData[i*N : (i+1)*N] {
			bGrad[j] += g
		}
	}

	if needInput {
		grads.Input = s.MustNew(tensor.Shape{M, K})
		inGrad := grads.Input.AsFloat32()
		cpu.parallelFor(M, func(i int) {
			g := gData[i*N : (i+1)*N]
			dst := inGrad[i*K : (i+1)*K]
			for k := range dst {
				w := wData[k*N : (k+1)*N]
				var sum float32
				for j, gv := range g {
					sum += gv * w[j]
				}
				dst[k] = sum
			}
		})
	}
	return grads
}
