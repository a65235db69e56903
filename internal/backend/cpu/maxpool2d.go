package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/digitpad/internal/tensor"
)

// MaxPool2D performs 2D max pooling over channels-last input.
//
// Input shape:  [batch, height, width, channels]
// Output shape: [batch, out_height, out_width, channels]
//
// Where:
//
//	out_height = (height - window) / stride + 1
//	out_width = (width - window) / stride + 1
//
// It also returns, for every output element, the flat input index that held
// the maximum. The backward pass routes gradients through those indices.
// Ties keep the first position in row-major window order.
//
// Example (2x2 pool, stride=2, one channel):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(s *tensor.Scope, input *tensor.RawTensor, window, stride int) (*tensor.RawTensor, []int) {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,H,W,C], got %dD", len(inputShape)))
	}
	if window <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid window %d", window))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}

	N, H, W, C := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	if window > H || window > W {
		panic(fmt.Sprintf("maxpool2d: window %d too large for input %dx%d", window, H, W))
	}

	HOut := (H-window)/stride + 1
	WOut := (W-window)/stride + 1

	output := s.MustNew(tensor.Shape{N, HOut, WOut, C})
	argmax := make([]int, output.NumElements())

	inputData := input.AsFloat32()
	outputData := output.AsFloat32()

	cpu.parallelFor(N, func(n int) {
		for outH := 0; outH < HOut; outH++ {
			for outW := 0; outW < WOut; outW++ {
				for c := 0; c < C; c++ {
					best := float32(math.Inf(-1))
					bestIdx := -1
					for kh := 0; kh < window; kh++ {
						h := outH*stride + kh
						for kw := 0; kw < window; kw++ {
							w := outW*stride + kw
							idx := ((n*H+h)*W+w)*C + c
							if v := inputData[idx]; bestIdx < 0 || v > best {
								best = v
								bestIdx = idx
							}
						}
					}
					outIdx := ((n*HOut+outH)*WOut+outW)*C + c
					outputData[outIdx] = best
					argmax[outIdx] = bestIdx
				}
			}
		}
	})

	return output, argmax
}

// MaxPool2DBackward routes gradients to the positions that won the forward max.
//
// Every output gradient flows to exactly one input element; all other
// elements of the window receive zero.
func (cpu *CPUBackend) MaxPool2DBackward(s *tensor.Scope, grad *tensor.RawTensor, argmax []int, inputShape tensor.Shape) *tensor.RawTensor {
	if len(argmax) != grad.NumElements() {
		panic(fmt.Sprintf("maxpool2d backward: argmax length %d != grad elements %d",
			len(argmax), grad.NumElements()))
	}

	inputGrad := s.MustNew(inputShape.Clone())
	inputGradData := inputGrad.AsFloat32()
	for i, g := range grad.AsFloat32() {
		inputGradData[argmax[i]] += g
	}
	return inputGrad
}
