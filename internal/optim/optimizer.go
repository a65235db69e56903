// Package optim implements the optimizer that updates model weights.
//
// Example usage:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.15})
//
//	err := tensor.Tidy(func(s *tensor.Scope) error {
//	    // forward + backward store gradients on the parameters
//	    optimizer.Step()
//	    optimizer.ZeroGrad()
//	    return nil
//	})
package optim

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the gradients currently stored on the parameters.
	// Parameters without a gradient are skipped.
	Step()

	// ZeroGrad clears all parameter gradients.
	//
	// Gradients are owned by the step's scope, so this must run before the
	// scope is released.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}
