package optim

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/nn"
)

// DefaultLR is the learning rate used when SGDConfig.LR is zero.
const DefaultLR = 0.15

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// The digit classifier trains with momentum 0.
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: DefaultLR)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = DefaultLR
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step in place.
func (s *SGD) Step() {
	for _, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		values := param.Tensor().AsFloat32()
		g := grad.AsFloat32()
		if len(g) != len(values) {
			panic(fmt.Sprintf("sgd: gradient of %s has %d elements, want %d", param.Name(), len(g), len(values)))
		}

		if s.momentum == 0 {
			for i, gv := range g {
				values[i] -= s.lr * gv
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]float32, len(values))
			s.velocities[param] = velocity
		}
		for i, gv := range g {
			velocity[i] = s.momentum*velocity[i] + gv
			values[i] -= s.lr * velocity[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

func (s *SGD) String() string {
	if s.momentum == 0 {
		return fmt.Sprintf("SGD(lr=%g)", s.lr)
	}
	return fmt.Sprintf("SGD(lr=%g, momentum=%g)", s.lr, s.momentum)
}
