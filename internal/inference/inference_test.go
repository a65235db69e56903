package inference

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/digitpad/internal/model"
	"github.com/born-ml/digitpad/internal/tensor"
)

// fixedModel returns the same probability row for every example.
type fixedModel struct {
	row   []float32
	calls int
}

func (f *fixedModel) Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	f.calls++
	n := x.Shape()[0]
	out := s.MustNew(tensor.Shape{n, len(f.row)})
	for i := 0; i < n; i++ {
		copy(out.AsFloat32()[i*len(f.row):], f.row)
	}
	return out, nil
}

type countingLocker struct {
	sync.Mutex
	locks int
}

func (c *countingLocker) Lock() {
	c.Mutex.Lock()
	c.locks++
}

func image(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.NewRaw(shape)
	require.NoError(t, err)
	t.Cleanup(x.Release)
	return x
}

var always = ReadyFunc(func() bool { return true })

func TestPredict_NotReady(t *testing.T) {
	m := &fixedModel{row: make([]float32, 10)}
	e := New(m, ReadyFunc(func() bool { return false }))

	inputs := []*tensor.RawTensor{
		nil,
		image(t, tensor.Shape{28, 28, 1}),
		image(t, tensor.Shape{1, 28, 28, 1}),
		image(t, tensor.Shape{3, 3}),
	}
	for _, x := range inputs {
		_, err := e.Predict(x)
		assert.ErrorIs(t, err, ErrInferenceNotReady)
		_, err = e.PredictBatch(x)
		assert.ErrorIs(t, err, ErrInferenceNotReady)
	}
	assert.Zero(t, m.calls, "no forward pass before training")

	_, err := New(m, nil).Predict(image(t, tensor.Shape{28, 28, 1}))
	assert.ErrorIs(t, err, ErrInferenceNotReady)
}

func TestPredict_ArgmaxAndRanking(t *testing.T) {
	row := []float32{0.05, 0.3, 0.05, 0.3, 0.1, 0.05, 0.05, 0.05, 0.03125, 0.01875}
	lock := &countingLocker{}
	e := New(&fixedModel{row: row}, always, WithLock(lock))

	for _, shape := range []tensor.Shape{{28, 28, 1}, {1, 28, 28, 1}} {
		live := tensor.Live()
		x := image(t, shape)
		p, err := e.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, live+1, tensor.Live(), "only the caller's input stays live")

		assert.Equal(t, 1, p.Class, "tie between 1 and 3 resolves to the lower index")
		assert.InDelta(t, 1, p.Sum(), 1e-3)

		pct := p.Percentages()
		assert.Equal(t, 30.0, pct[1])
		assert.Equal(t, 3.13, pct[8], "3.125 rounds half away from zero")

		ranked := p.Ranked()
		require.Len(t, ranked, 10)
		assert.Equal(t, []int{1, 3, 4}, []int{ranked[0].Class, ranked[1].Class, ranked[2].Class})
		assert.Equal(t, 8, ranked[8].Class)
		assert.Equal(t, 9, ranked[9].Class)
		for i := 1; i < len(ranked); i++ {
			assert.GreaterOrEqual(t, ranked[i-1].Probability, ranked[i].Probability)
		}
	}
	assert.Equal(t, 2, lock.locks)
}

func TestPredict_InvalidInput(t *testing.T) {
	e := New(&fixedModel{row: make([]float32, 10)}, always)

	_, err := e.Predict(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.Predict(image(t, tensor.Shape{2, 28, 28, 1}))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.PredictBatch(image(t, tensor.Shape{28, 28}))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPredict_WrongModelOutput(t *testing.T) {
	e := New(&fixedModel{row: make([]float32, 3)}, always)
	_, err := e.Predict(image(t, tensor.Shape{28, 28, 1}))
	assert.Error(t, err)
}

func TestPredictBatch_WithModel(t *testing.T) {
	m, err := model.New(model.WithSeed(1))
	require.NoError(t, err)
	defer m.Close()
	e := New(m, always)

	x := image(t, tensor.Shape{4, 28, 28, 1})
	for i := range x.AsFloat32() {
		x.AsFloat32()[i] = float32(i%255) / 255
	}

	live := tensor.Live()
	preds, err := e.PredictBatch(x)
	require.NoError(t, err)
	assert.Equal(t, live, tensor.Live())
	require.Len(t, preds, 4)
	for _, p := range preds {
		assert.InDelta(t, 1, p.Sum(), 1e-3)
		for _, v := range p.Probabilities {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
		assert.Equal(t, Argmax(p.Probabilities[:]), p.Class)
	}

	// Input with a shape the model rejects.
	_, err = e.PredictBatch(image(t, tensor.Shape{1, 14, 14, 1}))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, errors.Is(err, model.ErrInputShape))
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, -1, Argmax(nil))
	assert.Equal(t, 0, Argmax([]float32{0.1, 0.1, 0.1}))
	assert.Equal(t, 2, Argmax([]float32{0.1, 0.2, 0.7}))
	assert.Equal(t, 1, Argmax([]float32{0, 0.5, 0.5}))
}

func TestRoundPercent(t *testing.T) {
	assert.Equal(t, 50.0, RoundPercent(0.5))
	assert.Equal(t, 12.5, RoundPercent(0.125))
	assert.Equal(t, 3.13, RoundPercent(0.03125))
	assert.Equal(t, 0.0, RoundPercent(0))
	assert.Equal(t, 100.0, RoundPercent(1))
}
