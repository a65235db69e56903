package tensor_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/digitpad/tensor"
)

func TestTidy(t *testing.T) {
	live := tensor.Live()

	var kept *tensor.RawTensor
	err := tensor.Tidy(func(s *tensor.Scope) error {
		a := s.MustNew(tensor.Shape{2, 3})
		b, err := s.Reshape(a, tensor.Shape{3, 2})
		require.NoError(t, err)
		b.AsFloat32()[0] = 1
		kept = s.Keep(a.Copy())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, live+1, tensor.Live())
	assert.Equal(t, float32(1), kept.AsFloat32()[0])

	kept.Release()
	assert.Equal(t, live, tensor.Live())
}

func TestTidyValue_error(t *testing.T) {
	live := tensor.Live()
	boom := errors.New("boom")

	_, err := tensor.TidyValue(func(s *tensor.Scope) (int, error) {
		s.MustNew(tensor.Shape{4})
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, live, tensor.Live())
}

func TestFromSlice(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	defer x.Release()
	assert.Equal(t, tensor.Shape{2, 2}, x.Shape())

	_, err = tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2})
	assert.Error(t, err)
}
