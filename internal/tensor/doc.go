// Package tensor provides the float32 tensors used by the digit classifier.
//
// Tensors are backed by reference-counted buffers drawn from a process-wide
// pool. Every tensor created for one training iteration or one prediction is
// owned by a Scope and returned to the pool when the scope is released, so
// peak memory depends on the batch size and not on how many batches run.
//
// Example:
//
//	err := tensor.Tidy(func(s *tensor.Scope) error {
//	    x := s.MustNew(tensor.Shape{64, 28, 28, 1})
//	    // ... use x ...
//	    return nil
//	}) // x is released here
package tensor
