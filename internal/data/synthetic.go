package data

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Synthetic generates deterministic digit-like batches without any files.
//
// Example k is class k%10. Its image is a fixed pattern for that class: a
// vertical bar whose column encodes the class, drawn over a light noise
// floor from a seeded generator. The same seed always yields the same
// sequence of batches.
type Synthetic struct {
	mu   sync.Mutex
	rng  *rand.Rand
	next int
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // test data
}

// NextTrainBatch implements Source.
func (s *Synthetic) NextTrainBatch(ctx context.Context, n int) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}
	if n <= 0 {
		return Batch{}, fmt.Errorf("%w: invalid batch size %d", ErrBatchFetch, n)
	}
	batch, err := newBatch(n)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	images := batch.Images.AsFloat32()
	labels := batch.Labels.AsFloat32()
	for i := 0; i < n; i++ {
		class := s.next % NumClasses
		s.next++
		drawSynthetic(images[i*ImagePixels:(i+1)*ImagePixels], class, s.rng)
		labels[i*NumClasses+class] = 1
	}
	return batch, nil
}

// NextTestBatch implements TestSource.
func (s *Synthetic) NextTestBatch(ctx context.Context, n int) (Batch, error) {
	return s.NextTrainBatch(ctx, n)
}

// drawSynthetic renders a 3-pixel-wide bar at column 3+2*class.
func drawSynthetic(dst []float32, class int, rng *rand.Rand) {
	col := 3 + 2*class
	for h := 4; h < ImageSize-4; h++ {
		row := dst[h*ImageSize : (h+1)*ImageSize]
		for w := col; w < col+3; w++ {
			row[w] = 1
		}
	}
	for i := range dst {
		if dst[i] == 0 {
			dst[i] = float32(rng.Float64()) * 0.1
		}
	}
}

// Constant serves the same image and label for every example.
//
// It is the stub source used to exercise the training loop end to end.
type Constant struct {
	Pixel float32 // value of every pixel
	Class int     // label of every example
}

// NextTrainBatch implements Source.
func (c Constant) NextTrainBatch(ctx context.Context, n int) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}
	if n <= 0 || c.Class < 0 || c.Class >= NumClasses {
		return Batch{}, fmt.Errorf("%w: invalid batch size %d or class %d", ErrBatchFetch, n, c.Class)
	}
	batch, err := newBatch(n)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrBatchFetch, err)
	}
	if c.Pixel != 0 {
		for i := range batch.Images.AsFloat32() {
			batch.Images.AsFloat32()[i] = c.Pixel
		}
	}
	labels := batch.Labels.AsFloat32()
	for i := 0; i < n; i++ {
		labels[i*NumClasses+c.Class] = 1
	}
	return batch, nil
}

// NextTestBatch implements TestSource.
func (c Constant) NextTestBatch(ctx context.Context, n int) (Batch, error) {
	return c.NextTrainBatch(ctx, n)
}
