// Package data supplies training and evaluation batches.
//
// A Source hands out batches of (image, one-hot label) pairs. Images are
// flattened rows of 28*28 float32 values in [0,1]; labels are rows of 10
// one-hot float32 values. Sampling and shuffling are the source's concern.
package data

import (
	"context"
	"errors"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Geometry of every batch.
const (
	ImageSize   = 28
	ImagePixels = ImageSize * ImageSize
	NumClasses  = 10
)

// ErrBatchFetch reports that a source could not supply a requested batch.
var ErrBatchFetch = errors.New("batch fetch failed")

// Batch is N images with their one-hot labels.
//
// Images is (N, 784) and Labels is (N, 10). The receiver of a batch owns
// both tensors and must release them.
type Batch struct {
	Images *tensor.RawTensor
	Labels *tensor.RawTensor
}

// Release releases both tensors. Nil tensors are skipped.
func (b Batch) Release() {
	if b.Images != nil {
		b.Images.Release()
	}
	if b.Labels != nil {
		b.Labels.Release()
	}
}

// Size returns the number of examples, or 0 for an empty batch.
func (b Batch) Size() int {
	if b.Images == nil || len(b.Images.Shape()) == 0 {
		return 0
	}
	return b.Images.Shape()[0]
}

// Source supplies training batches.
type Source interface {
	// NextTrainBatch returns exactly n examples. It must be callable
	// repeatedly; failures wrap ErrBatchFetch.
	NextTrainBatch(ctx context.Context, n int) (Batch, error)
}

// TestSource additionally supplies held-out batches for evaluation.
type TestSource interface {
	Source
	NextTestBatch(ctx context.Context, n int) (Batch, error)
}

// newBatch allocates an empty batch of n examples.
func newBatch(n int) (Batch, error) {
	images, err := tensor.NewRaw(tensor.Shape{n, ImagePixels})
	if err != nil {
		return Batch{}, err
	}
	labels, err := tensor.NewRaw(tensor.Shape{n, NumClasses})
	if err != nil {
		images.Release()
		return Batch{}, err
	}
	return Batch{Images: images, Labels: labels}, nil
}

// Argmax returns the class index of every label row, lowest index on ties.
func Argmax(labels *tensor.RawTensor) []int {
	shape := labels.Shape()
	rows, cols := shape[0], shape[len(shape)-1]
	data := labels.AsFloat32()
	out := make([]int, rows)
	for r := range out {
		row := data[r*cols : (r+1)*cols]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		out[r] = best
	}
	return out
}
