package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Initializer fills a freshly allocated weight tensor.
type Initializer interface {
	// Initialize writes initial values into data. fanIn and fanOut are the
	// number of input and output units of the layer.
	Initialize(rng *rand.Rand, data []float32, fanIn, fanOut int)
	String() string
}

// VarianceScaling draws weights from a truncated normal distribution with
// stddev sqrt(Scale / fanIn). Samples beyond two standard deviations are
// redrawn.
//
// A zero Scale is treated as 1.
type VarianceScaling struct {
	Scale float64
}

// Initialize implements Initializer.
func (v VarianceScaling) Initialize(rng *rand.Rand, data []float32, fanIn, _ int) {
	scale := v.Scale
	if scale == 0 {
		scale = 1
	}
	stddev := math.Sqrt(scale / float64(max(fanIn, 1)))
	for i := range data {
		z := rng.NormFloat64()
		for math.Abs(z) > 2 {
			z = rng.NormFloat64()
		}
		data[i] = float32(z * stddev)
	}
}

func (v VarianceScaling) String() string {
	return "variance_scaling"
}

// Zeros leaves weights at zero. Used for biases.
type Zeros struct{}

// Initialize implements Initializer.
func (Zeros) Initialize(_ *rand.Rand, data []float32, _, _ int) {
	clear(data)
}

func (Zeros) String() string {
	return "zeros"
}

// newParameter allocates a persistent tensor and initializes it.
func newParameter(name string, shape tensor.Shape, init Initializer, rng *rand.Rand, fanIn, fanOut int) (*Parameter, error) {
	t, err := tensor.NewRaw(shape)
	if err != nil {
		return nil, err
	}
	if init == nil {
		init = VarianceScaling{}
	}
	init.Initialize(rng, t.AsFloat32(), fanIn, fanOut)
	return NewParameter(name, t), nil
}
