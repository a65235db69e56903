package tensor

import (
	"fmt"
	"sync/atomic"
)

// tensorBuffer is a reference-counted pooled buffer shared by a tensor and
// its reshaped views.
type tensorBuffer struct {
	data     []float32
	refCount atomic.Int32
}

// newTensorBuffer acquires a buffer of n elements with refCount = 1.
func newTensorBuffer(n int) *tensorBuffer {
	buf := &tensorBuffer{data: defaultPool.acquire(n)}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and recycles the data at zero.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		data := tb.data
		tb.data = nil
		defaultPool.recycle(data)
	}
}

// RawTensor is a dense row-major float32 tensor.
//
// A RawTensor holds one reference on its buffer. Reshape creates a view that
// holds its own reference, so a buffer returns to the pool only after the
// tensor and all of its views are released.
type RawTensor struct {
	buffer   *tensorBuffer
	shape    Shape
	stride   []int
	released atomic.Bool
}

// NewRaw creates a zero-filled tensor with the given shape.
func NewRaw(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		buffer: newTensorBuffer(shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
	}, nil
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice(data []float32, shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t, err := NewRaw(shape)
	if err != nil {
		return nil, err
	}
	copy(t.buffer.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// AsFloat32 returns the tensor data without copying.
// Panics if the tensor has been released.
func (r *RawTensor) AsFloat32() []float32 {
	if r.released.Load() {
		panic(fmt.Sprintf("tensor %v used after release", r.shape))
	}
	return r.buffer.data[:r.NumElements()]
}

// Reshape returns a view with a new shape sharing this tensor's buffer.
//
// The element count must match. The view must be released independently.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape: cannot view %v (%d elements) as %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	if r.released.Load() {
		return nil, fmt.Errorf("reshape: tensor %v already released", r.shape)
	}
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
	}, nil
}

// Copy returns a deep copy backed by a new buffer.
func (r *RawTensor) Copy() *RawTensor {
	out := &RawTensor{
		buffer: newTensorBuffer(r.NumElements()),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
	}
	copy(out.buffer.data, r.AsFloat32())
	return out
}

// Release drops this tensor's reference on its buffer.
// Releasing twice is a no-op.
func (r *RawTensor) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.buffer.release()
	}
}

// Released reports whether Release has been called.
func (r *RawTensor) Released() bool {
	return r.released.Load()
}

// String returns a short description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v)", r.shape)
}
