package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/tensor"
)

func TestVarianceScaling_TruncatedAtTwoStddev(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := make([]float32, 10000)
	fanIn := 25
	VarianceScaling{}.Initialize(rng, data, fanIn, 8)

	stddev := math.Sqrt(1.0 / float64(fanIn))
	var sum, sumSq float64
	for _, v := range data {
		require.LessOrEqual(t, math.Abs(float64(v)), 2*stddev+1e-6)
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	mean := sum / float64(len(data))
	assert.InDelta(t, 0, mean, 0.01)
	// A normal truncated at 2 sigma keeps about 77% of its variance.
	assert.InDelta(t, 0.774*stddev*stddev, sumSq/float64(len(data)), 0.05*stddev*stddev)
}

func TestVarianceScaling_Deterministic(t *testing.T) {
	a := make([]float32, 64)
	b := make([]float32, 64)
	VarianceScaling{}.Initialize(rand.New(rand.NewSource(42)), a, 10, 10)
	VarianceScaling{}.Initialize(rand.New(rand.NewSource(42)), b, 10, 10)
	assert.Equal(t, a, b)
}

func TestConv2D_Layer(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	conv, err := NewConv2D("conv2d_1", 1, 8, 5, 1, ReLU, VarianceScaling{}, rng, backend)
	require.NoError(t, err)
	t.Cleanup(func() { releaseAll(conv) })

	out, err := conv.OutputShape(tensor.Shape{28, 28, 1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{24, 24, 8}, out)

	params := conv.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "conv2d_1.weight", params[0].Name())
	assert.Equal(t, tensor.Shape{5, 5, 1, 8}, params[0].Tensor().Shape())
	assert.Equal(t, tensor.Shape{8}, params[1].Tensor().Shape())
	for _, v := range params[1].Tensor().AsFloat32() {
		assert.Zero(t, v)
	}

	_, err = conv.OutputShape(tensor.Shape{28, 28, 3})
	assert.Error(t, err)
	_, err = conv.OutputShape(tensor.Shape{4, 4, 1})
	assert.Error(t, err)
}

func TestConv2D_ForwardAppliesReLU(t *testing.T) {
	backend := cpu.New()
	conv, err := NewConv2D("c", 1, 4, 3, 1, ReLU, nil, rand.New(rand.NewSource(2)), backend)
	require.NoError(t, err)
	t.Cleanup(func() { releaseAll(conv) })

	require.NoError(t, tensor.Tidy(func(s *tensor.Scope) error {
		x := s.MustNew(tensor.Shape{2, 6, 6, 1})
		for i := range x.AsFloat32() {
			x.AsFloat32()[i] = float32(i%5) - 2
		}
		out, _ := conv.Forward(s, x)
		assert.Equal(t, tensor.Shape{2, 4, 4, 4}, out.Shape())
		for _, v := range out.AsFloat32() {
			assert.GreaterOrEqual(t, v, float32(0))
		}
		return nil
	}))
}

func TestNewLayers_InvalidArguments(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	_, err := NewConv2D("c", 1, 0, 5, 1, ReLU, nil, rng, backend)
	assert.Error(t, err)
	_, err = NewConv2D("c", 1, 8, 5, 0, ReLU, nil, rng, backend)
	assert.Error(t, err)
	_, err = NewConv2D("c", 1, 8, 5, 1, Softmax, nil, rng, backend)
	assert.Error(t, err, "softmax over a 4D conv output")
	_, err = NewDense("d", 0, 10, Softmax, nil, rng, backend)
	assert.Error(t, err)
	_, err = NewMaxPool2D("p", 0, 2, backend)
	assert.Error(t, err)
}

func TestMaxPool2D_Layer(t *testing.T) {
	pool, err := NewMaxPool2D("pool", 2, 2, cpu.New())
	require.NoError(t, err)

	out, err := pool.OutputShape(tensor.Shape{24, 24, 8})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{12, 12, 8}, out)
	assert.Empty(t, pool.Parameters())

	_, err = pool.OutputShape(tensor.Shape{1, 1, 8})
	assert.Error(t, err)
}

func TestFlatten_RoundTrip(t *testing.T) {
	flat := NewFlatten("flatten")
	out, err := flat.OutputShape(tensor.Shape{4, 4, 16})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{256}, out)

	require.NoError(t, tensor.Tidy(func(s *tensor.Scope) error {
		x := s.MustNew(tensor.Shape{2, 2, 2, 3})
		for i := range x.AsFloat32() {
			x.AsFloat32()[i] = float32(i)
		}
		y, cache := flat.Forward(s, x)
		assert.Equal(t, tensor.Shape{2, 12}, y.Shape())
		assert.Equal(t, x.AsFloat32(), y.AsFloat32())

		back := flat.Backward(s, cache, y, true)
		assert.Equal(t, x.Shape(), back.Shape())
		return nil
	}))
}

// TestDenseSoftmax_CrossEntropyGradient checks that the modular softmax and
// cross-entropy gradients compose to (p - y) / N at the logits.
func TestDenseSoftmax_CrossEntropyGradient(t *testing.T) {
	backend := cpu.New()
	dense, err := NewDense("dense", 4, 3, Softmax, nil, rand.New(rand.NewSource(5)), backend)
	require.NoError(t, err)
	t.Cleanup(func() { releaseAll(dense) })

	loss := CategoricalCrossEntropy{}
	require.NoError(t, tensor.Tidy(func(s *tensor.Scope) error {
		x := s.MustNew(tensor.Shape{2, 4})
		copy(x.AsFloat32(), []float32{0.5, -1, 2, 0.1, 1, 1, -0.3, 0})
		y := s.MustNew(tensor.Shape{2, 3})
		copy(y.AsFloat32(), []float32{0, 1, 0, 1, 0, 0})

		probs, cache := dense.Forward(s, x)
		l, err := loss.Forward(probs, y)
		require.NoError(t, err)
		assert.Greater(t, l, float32(0))

		grad, err := loss.Backward(s, probs, y)
		require.NoError(t, err)
		dense.Backward(s, cache, grad, false)

		// dBias = sum_n (p - y) / N
		p, labels := probs.AsFloat32(), y.AsFloat32()
		for j := 0; j < 3; j++ {
			want := ((p[j] - labels[j]) + (p[3+j] - labels[3+j])) / 2
			assert.InDelta(t, want, dense.Bias().Grad().AsFloat32()[j], 1e-5)
		}
		for _, param := range dense.Parameters() {
			param.ZeroGrad()
		}
		return nil
	}))
	assert.Nil(t, dense.Weight().Grad())
}

func TestCategoricalCrossEntropy(t *testing.T) {
	loss := CategoricalCrossEntropy{}
	require.NoError(t, tensor.Tidy(func(s *tensor.Scope) error {
		p := s.MustNew(tensor.Shape{2, 2})
		copy(p.AsFloat32(), []float32{0.5, 0.5, 0, 1})
		y := s.MustNew(tensor.Shape{2, 2})
		copy(y.AsFloat32(), []float32{1, 0, 1, 0})

		l, err := loss.Forward(p, y)
		require.NoError(t, err)
		// Second row is clipped to 1e-7 instead of producing +Inf.
		want := (math.Log(2) - math.Log(1e-7)) / 2
		assert.InDelta(t, want, float64(l), 1e-3)

		bad := s.MustNew(tensor.Shape{2, 3})
		_, err = loss.Forward(p, bad)
		assert.Error(t, err)
		return nil
	}))
}

func TestActivation_String(t *testing.T) {
	assert.Equal(t, "relu", ReLU.String())
	assert.Equal(t, "softmax", Softmax.String())
	assert.Equal(t, "linear", None.String())
}

func releaseAll(l Layer) {
	for _, p := range l.Parameters() {
		p.Release()
	}
}
