package tensor

import "fmt"

// Scope owns a set of tensors and releases them together.
//
// A Scope is not safe for concurrent use; each training iteration or
// prediction gets its own.
type Scope struct {
	tensors []*RawTensor
	closed  bool
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{tensors: make([]*RawTensor, 0, 32)}
}

// NewRaw allocates a zero-filled tensor owned by the scope.
func (s *Scope) NewRaw(shape Shape) (*RawTensor, error) {
	t, err := NewRaw(shape)
	if err != nil {
		return nil, err
	}
	s.Track(t)
	return t, nil
}

// MustNew allocates a tensor owned by the scope and panics on an invalid shape.
//
// Kernels use it for outputs whose shapes were validated by the caller.
func (s *Scope) MustNew(shape Shape) *RawTensor {
	t, err := s.NewRaw(shape)
	if err != nil {
		panic(fmt.Sprintf("scope: %v", err))
	}
	return t
}

// Reshape creates a scope-owned view of t.
func (s *Scope) Reshape(t *RawTensor, shape Shape) (*RawTensor, error) {
	v, err := t.Reshape(shape)
	if err != nil {
		return nil, err
	}
	s.Track(v)
	return v, nil
}

// Track transfers ownership of tensors to the scope. Nil entries are ignored.
func (s *Scope) Track(ts ...*RawTensor) {
	if s.closed {
		panic("scope: track after release")
	}
	for _, t := range ts {
		if t != nil {
			s.tensors = append(s.tensors, t)
		}
	}
}

// Keep removes t from the scope so it survives Release.
// The caller becomes responsible for releasing it.
func (s *Scope) Keep(t *RawTensor) *RawTensor {
	for i, owned := range s.tensors {
		if owned == t {
			s.tensors = append(s.tensors[:i], s.tensors[i+1:]...)
			break
		}
	}
	return t
}

// Len returns the number of tensors currently owned.
func (s *Scope) Len() int {
	return len(s.tensors)
}

// Release releases every owned tensor in reverse allocation order.
func (s *Scope) Release() {
	for i := len(s.tensors) - 1; i >= 0; i-- {
		s.tensors[i].Release()
	}
	s.tensors = nil
	s.closed = true
}

// Tidy runs fn with a fresh scope and releases the scope when fn returns.
func Tidy(fn func(s *Scope) error) error {
	s := NewScope()
	defer s.Release()
	return fn(s)
}

// TidyValue is Tidy for functions producing a value.
//
// The value must not reference scope-owned tensors unless they were detached
// with Keep.
func TidyValue[T any](fn func(s *Scope) (T, error)) (T, error) {
	s := NewScope()
	defer s.Release()
	return fn(s)
}
