package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.True(t, s.Equal(Shape{2, 3, 4}))
	assert.False(t, s.Equal(Shape{2, 3}))
	assert.Equal(t, "(2,3,4)", s.String())
	assert.Equal(t, 1, Shape{}.NumElements())

	require.Error(t, Shape{2, 0}.Validate())
	require.NoError(t, s.Validate())
}

func TestNewRaw_ZeroFilled(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2})
	require.NoError(t, err)
	defer raw.Release()

	data := raw.AsFloat32()
	require.Len(t, data, 6)
	for _, v := range data {
		assert.Zero(t, v)
	}

	// Zero-copy access
	data[0] = 42
	assert.Equal(t, float32(42), raw.AsFloat32()[0])
}

func TestNewRaw_InvalidShape(t *testing.T) {
	_, err := NewRaw(Shape{1, -1})
	require.Error(t, err)
}

func TestFromSlice(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	raw, err := FromSlice(src, Shape{2, 2})
	require.NoError(t, err)
	defer raw.Release()

	src[0] = 99
	assert.Equal(t, []float32{1, 2, 3, 4}, raw.AsFloat32(), "FromSlice must copy")

	_, err = FromSlice(src, Shape{3})
	require.Error(t, err)
}

func TestReshape_SharesBuffer(t *testing.T) {
	before := Live()

	raw, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{6})
	require.NoError(t, err)

	view, err := raw.Reshape(Shape{2, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3, 1}, view.Shape())
	assert.Equal(t, []int{3, 1, 1}, view.Strides())

	view.AsFloat32()[5] = 60
	assert.Equal(t, float32(60), raw.AsFloat32()[5])

	// Buffer stays alive while the view holds a reference.
	raw.Release()
	assert.Equal(t, before+1, Live())
	assert.Equal(t, float32(1), view.AsFloat32()[0])

	view.Release()
	assert.Equal(t, before, Live())

	_, err = raw.Reshape(Shape{3, 3})
	require.Error(t, err)
}

func TestReshape_ElementMismatch(t *testing.T) {
	raw, err := NewRaw(Shape{4})
	require.NoError(t, err)
	defer raw.Release()

	_, err = raw.Reshape(Shape{5})
	require.Error(t, err)
}

func TestRelease_Idempotent(t *testing.T) {
	before := Live()
	raw, err := NewRaw(Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, before+1, Live())

	raw.Release()
	raw.Release()
	assert.True(t, raw.Released())
	assert.Equal(t, before, Live())

	assert.Panics(t, func() { raw.AsFloat32() })
}

func TestCopy_IsIndependent(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2}, Shape{2})
	require.NoError(t, err)
	defer raw.Release()

	cp := raw.Copy()
	defer cp.Release()
	cp.AsFloat32()[0] = 7
	assert.Equal(t, float32(1), raw.AsFloat32()[0])
}

func TestPool_ReusesZeroedBuffers(t *testing.T) {
	raw, err := NewRaw(Shape{1234})
	require.NoError(t, err)
	raw.AsFloat32()[10] = 5
	raw.Release()

	reusedBefore := Stats().Reused
	again, err := NewRaw(Shape{1234})
	require.NoError(t, err)
	defer again.Release()

	assert.Greater(t, Stats().Reused, reusedBefore)
	assert.Zero(t, again.AsFloat32()[10], "recycled buffers must be cleared")
}

func TestTidy_ReleasesEverything(t *testing.T) {
	before := Live()

	var kept *RawTensor
	err := Tidy(func(s *Scope) error {
		a := s.MustNew(Shape{8, 8})
		b, err := s.Reshape(a, Shape{64})
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())

		kept = s.Keep(s.MustNew(Shape{3}))
		_ = b
		assert.Equal(t, before+2, Live())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, before+1, Live(), "only the kept tensor survives")
	kept.Release()
	assert.Equal(t, before, Live())
}

func TestTidy_ReleasesOnError(t *testing.T) {
	before := Live()
	boom := errors.New("boom")

	err := Tidy(func(s *Scope) error {
		s.MustNew(Shape{16})
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, Live())
}

func TestTidyValue(t *testing.T) {
	sum, err := TidyValue(func(s *Scope) (float32, error) {
		x, err := FromSlice([]float32{1, 2, 3}, Shape{3})
		if err != nil {
			return 0, err
		}
		s.Track(x)
		var total float32
		for _, v := range x.AsFloat32() {
			total += v
		}
		return total, nil
	})
	require.NoError(t, err)
	assert.Equal(t, float32(6), sum)
}

func TestScope_TrackAfterRelease(t *testing.T) {
	s := NewScope()
	s.Release()
	raw, err := NewRaw(Shape{1})
	require.NoError(t, err)
	defer raw.Release()
	assert.Panics(t, func() { s.Track(raw) })
}
