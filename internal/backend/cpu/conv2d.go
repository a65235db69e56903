package cpu

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Conv2D performs a valid (unpadded) 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, height, width, in_channels]
// Kernel shape: [kernel_h, kernel_w, in_channels, out_channels]
// Bias shape:   [out_channels] (may be nil)
// Output shape: [batch, out_h, out_w, out_channels]
//
// Where:
//
//	out_h = (height - kernel_h) / stride + 1
//	out_w = (width - kernel_w) / stride + 1
//
// Algorithm: Im2col
//  1. Transform input patches into rows: cols [batch*out_h*out_w, kernel_h*kernel_w*in_channels]
//  2. The kernel is already a [kernel_h*kernel_w*in_channels, out_channels] matrix
//  3. cols @ kernel gives the output directly in channels-last order
//
// The cols buffer is returned as well because the backward pass reuses it to
// compute the kernel gradient. Both tensors belong to s.
func (cpu *CPUBackend) Conv2D(s *tensor.Scope, input, kernel, bias *tensor.RawTensor, stride int) (output, cols *tensor.RawTensor) {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,H,W,C], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [K_h,K_w,C_in,C_out], got %dD", len(kernelShape)))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}

	N, H, W, CIn := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	KH, KW, CInK, COut := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}
	if bias != nil && bias.NumElements() != COut {
		panic(fmt.Sprintf("conv2d: bias has %d elements, want %d", bias.NumElements(), COut))
	}

	HOut := (H-KH)/stride + 1
	WOut := (W-KW)/stride + 1
	if KH > H || KW > W || HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: kernel %dx%d does not fit input %dx%d", KH, KW, H, W))
	}

	colHeight := N * HOut * WOut
	colWidth := KH * KW * CIn

	cols = s.MustNew(tensor.Shape{colHeight, colWidth})
	output = s.MustNew(tensor.Shape{N, HOut, WOut, COut})

	im2col(cols.AsFloat32(), input.AsFloat32(), N, H, W, CIn, KH, KW, HOut, WOut, stride)

	colData := cols.AsFloat32()
	kernelData := kernel.AsFloat32()
	outputData := output.AsFloat32()
	var biasData []float32
	if bias != nil {
		biasData = bias.AsFloat32()
	}

	// One output row per (n, out_h, out_w); rows are independent.
	cpu.parallelFor(colHeight, func(row int) {
		outRow := outputData[row*COut : (row+1)*COut]
		if biasData != nil {
			copy(outRow, biasData)
		}
		colRow := colData[row*colWidth : (row+1)*colWidth]
		for k, a := range colRow {
			if a == 0 {
				continue
			}
			kernelRow := kernelData[k*COut : (k+1)*COut]
			for f, w := range kernelRow {
				outRow[f] += a * w
			}
		}
	})

	return output, cols
}

// im2col transforms an NHWC input into the column matrix.
//
// Row index:    (n*HOut + outH)*WOut + outW
// Column index: (kh*KW + kw)*C + c, matching the kernel's row-major layout.
func im2col(colBuf, inputData []float32, N, H, W, C, KH, KW, HOut, WOut, stride int) {
	colWidth := KH * KW * C
	row := 0

	for n := 0; n < N; n++ {
		sample := inputData[n*H*W*C : (n+1)*H*W*C]
		for outH := 0; outH < HOut; outH++ {
			for outW := 0; outW < WOut; outW++ {
				hStart := outH * stride
				wStart := outW * stride
				dst := colBuf[row*colWidth : (row+1)*colWidth]

				idx := 0
				for kh := 0; kh < KH; kh++ {
					// Each kernel row covers KW*C contiguous input values.
					src := ((hStart+kh)*W + wStart) * C
					copy(dst[idx:idx+KW*C], sample[src:src+KW*C])
					idx += KW * C
				}
				row++
			}
		}
	}
}
