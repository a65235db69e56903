// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the float32 tensors the digit
// classifier computes with.
//
// Tensors are dense, row-major and backed by pooled buffers. Every tensor
// must be released exactly once; a Scope releases everything created through
// it in one call, and Tidy wraps a function in a Scope:
//
//	loss, err := tensor.TidyValue(func(s *tensor.Scope) (float32, error) {
//	    x := s.MustNew(tensor.Shape{64, 28, 28, 1})
//	    return model.TrainStep(s, x, labels)
//	})
//
// Live reports how many tensor buffers are currently held, which makes
// leaks visible in tests.
package tensor

import (
	"github.com/born-ml/digitpad/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{64, 28, 28, 1} is a batch of 64 single-channel 28x28 images.
type Shape = tensor.Shape

// RawTensor is a float32 tensor with a shape and a reference-counted buffer.
type RawTensor = tensor.RawTensor

// Scope owns the tensors created through it until Release.
type Scope = tensor.Scope

// PoolStats describes the buffer pool.
type PoolStats = tensor.PoolStats

// NewRaw returns a zero-filled tensor. The caller must Release it.
func NewRaw(shape Shape) (*RawTensor, error) {
	return tensor.NewRaw(shape)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return tensor.NewScope()
}

// Tidy runs fn with a fresh scope and releases the scope afterwards, even
// when fn fails. Use Scope.Keep to let a tensor outlive the call.
func Tidy(fn func(s *Scope) error) error {
	return tensor.Tidy(fn)
}

// TidyValue is Tidy for functions that return a value.
func TidyValue[T any](fn func(s *Scope) (T, error)) (T, error) {
	return tensor.TidyValue(fn)
}

// Live returns the number of tensor buffers that have not been released.
func Live() int64 {
	return tensor.Live()
}

// Stats returns buffer pool statistics.
func Stats() PoolStats {
	return tensor.Stats()
}
