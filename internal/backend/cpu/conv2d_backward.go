package cpu

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Conv2DGrads holds the gradients produced by Conv2DBackward.
type Conv2DGrads struct {
	Input  *tensor.RawTensor // [batch, height, width, in_channels], nil unless requested
	Kernel *tensor.RawTensor // [kernel_h, kernel_w, in_channels, out_channels]
	Bias   *tensor.RawTensor // [out_channels]
}

// Conv2DBackward computes convolution gradients from the upstream gradient.
//
// Parameters:
//   - cols: im2col buffer returned by the forward Conv2D call
//   - kernel: kernel used in the forward pass
//   - grad: gradient w.r.t. the output [batch, out_h, out_w, out_channels]
//   - inputShape: shape of the forward input
//   - stride: forward stride
//   - needInput: whether to compute the input gradient (false for the first layer)
//
// Gradients:
//
//	dKernel = cols^T @ grad
//	dBias   = sum over rows of grad
//	dInput  = col2im(grad @ kernel^T)
func (cpu *CPUBackend) Conv2DBackward(
	s *tensor.Scope,
	cols, kernel, grad *tensor.RawTensor,
	inputShape tensor.Shape,
	stride int,
	needInput bool,
) Conv2DGrads {
	kernelShape := kernel.Shape()
	gradShape := grad.Shape()
	if len(gradShape) != 4 || len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d backward: expected 4D grad and input, got %v and %v", gradShape, inputShape))
	}

	N, H, W, CIn := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	KH, KW, COut := kernelShape[0], kernelShape[1], kernelShape[3]
	HOut, WOut := gradShape[1], gradShape[2]

	colHeight := N * HOut * WOut
	colWidth := KH * KW * CIn
	if !cols.Shape().Equal(tensor.Shape{colHeight, colWidth}) {
		panic(fmt.Sprintf("conv2d backward: cols shape %v != [%d %d]", cols.Shape(), colHeight, colWidth))
	}
	if gradShape[0] != N || gradShape[3] != COut {
		panic(fmt.Sprintf("conv2d backward: grad shape %v incompatible with input %v and kernel %v",
			gradShape, inputShape, kernelShape))
	}

	colData := cols.AsFloat32()
	gradData := grad.AsFloat32()
	kernelData := kernel.AsFloat32()

	grads := Conv2DGrads{
		Kernel: s.MustNew(kernelShape.Clone()),
		Bias:   s.MustNew(tensor.Shape{COut}),
	}

	// dKernel[k, f] = sum_row cols[row, k] * grad[row, f]; each k owns one kernel row.
	kernelGrad := grads.Kernel.AsFloat32()
	cpu.parallelFor(colWidth, func(k int) {
		dst := kernelGrad[k*COut : (k+1)*COut]
		for row := 0; row < colHeight; row++ {
			a := colData[row*colWidth+k]
			if a == 0 {
				continue
			}
			g := gradData[row*COut : (row+1)*COut]
			for f, gv := range g {
				dst[f] += a * gv
			}
		}
	})

	biasGrad := grads.Bias.AsFloat32()
	for row := 0; row < colHeight; row++ {
		g := gradData[row*COut : (row+1)*COut]
		for f, gv := range g {
			biasGrad[f] += gv
		}
	}

	if needInput {
		grads.Input = s.MustNew(inputShape.Clone())
		conv2dInputBackward(cpu, grads.Input.AsFloat32(), gradData, kernelData,
			N, H, W, CIn, KH, KW, COut, HOut, WOut, stride)
	}

	return grads
}

// conv2dInputBackward scatters grad @ kernel^T back onto input positions.
//
// Work is split by sample: rows of different samples never touch the same
// input element, so no synchronization is needed.
func conv2dInputBackward(
	cpu *CPUBackend,
	inputGrad, gradData, kernelData []float32,
	N, H, W, CIn, KH, KW, COut, HOut, WOut, stride int,
) {
	cpu.parallelFor(N, func(n int) {
		sample := inputGrad[n*H*W*CIn : (n+1)*H*W*CIn]
		for outH := 0; outH < HOut; outH++ {
			for outW := 0; outW < WOut; outW++ {
				row := (n*HOut+outH)*WOut + outW
				g := gradData[row*COut : (row+1)*COut]

				k := 0
				for kh := 0; kh < KH; kh++ {
					for kw := 0; kw < KW; kw++ {
						base := ((outH*stride+kh)*W + outW*stride + kw) * CIn
						for c := 0; c < CIn; c++ {
							kernelRow := kernelData[k*COut : (k+1)*COut]
							var sum float32
							for f, gv := range g {
								sum += gv * kernelRow[f]
							}
							sample[base+c] += sum
							k++
						}
					}
				}
			}
		}
	})
}
