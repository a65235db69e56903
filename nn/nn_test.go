package nn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/digitpad/backend/cpu"
	"github.com/born-ml/digitpad/nn"
	"github.com/born-ml/digitpad/optim"
	"github.com/born-ml/digitpad/tensor"
)

// One dense softmax layer fit to a fixed batch with the public API.
func TestDenseTraining(t *testing.T) {
	live := tensor.Live()
	backend := cpu.NewWithConfig(cpu.Sequential())
	rng := rand.New(rand.NewSource(3))

	dense, err := nn.NewDense("dense", 4, 3, nn.Softmax, nn.VarianceScaling{Scale: 1}, rng, backend)
	require.NoError(t, err)
	opt := optim.NewSGD(dense.Parameters(), optim.SGDConfig{LR: optim.DefaultLR})
	assert.InDelta(t, optim.DefaultLR, opt.GetLR(), 1e-6)

	loss := nn.CategoricalCrossEntropy{Epsilon: nn.DefaultEpsilon}
	step := func() float32 {
		l, err := tensor.TidyValue(func(s *tensor.Scope) (float32, error) {
			x := s.MustNew(tensor.Shape{3, 4})
			copy(x.AsFloat32(), []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 1})
			y := s.MustNew(tensor.Shape{3, 3})
			copy(y.AsFloat32(), []float32{1, 0, 0, 0, 1, 0, 0, 0, 1})

			probs, cache := dense.Forward(s, x)
			l, err := loss.Forward(probs, y)
			if err != nil {
				return 0, err
			}
			grad, err := loss.Backward(s, probs, y)
			if err != nil {
				return 0, err
			}
			dense.Backward(s, cache, grad, false)
			opt.Step()
			opt.ZeroGrad()
			return l, nil
		})
		require.NoError(t, err)
		return l
	}

	first := step()
	var last float32
	for range 50 {
		last = step()
	}
	assert.Less(t, last, first)

	for _, p := range dense.Parameters() {
		p.Release()
	}
	assert.Equal(t, live, tensor.Live())
}

func TestConvPoolFlatten_Shapes(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	conv, err := nn.NewConv2D("conv", 1, 8, 5, 1, nn.ReLU, nn.VarianceScaling{Scale: 1}, rng, backend)
	require.NoError(t, err)
	defer func() {
		for _, p := range conv.Parameters() {
			p.Release()
		}
	}()
	pool, err := nn.NewMaxPool2D("pool", 2, 2, backend)
	require.NoError(t, err)
	flat := nn.NewFlatten("flatten")

	shape := tensor.Shape{28, 28, 1}
	for _, l := range []nn.Layer{conv, pool, flat} {
		shape, err = l.OutputShape(shape)
		require.NoError(t, err, l.Name())
	}
	assert.Equal(t, tensor.Shape{12 * 12 * 8}, shape)
}
