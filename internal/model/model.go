// Package model builds and trains the digit classifier.
//
// A model is an ordered list of nn layers built from a typed LayerConfig
// list, paired with categorical cross-entropy and SGD. Build infers every
// intermediate shape up front, so shape problems surface as ErrModelBuild
// instead of kernel panics.
package model

import (
	"fmt"
	"math/rand"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/born-ml/digitpad/internal/backend/cpu"
	"github.com/born-ml/digitpad/internal/nn"
	"github.com/born-ml/digitpad/internal/optim"
	"github.com/born-ml/digitpad/internal/tensor"
)

// DigitInputShape is the per-example input shape of the digit classifier.
func DigitInputShape() tensor.Shape {
	return tensor.Shape{ImageSize, ImageSize, Channels}
}

// Model is a feed-forward network with its loss and optimizer.
//
// Model is not safe for concurrent use with TrainStep; callers serialize
// training steps against Forward calls.
type Model struct {
	layers       []nn.Layer
	shapes       []tensor.Shape // shapes[i] is the input of layers[i]; the last entry is the output
	loss         nn.CategoricalCrossEntropy
	optimizer    *optim.SGD
	backend      *cpu.CPUBackend
	learningRate float32
}

type options struct {
	seed         int64
	seeded       bool
	backend      *cpu.CPUBackend
	learningRate float32
}

// Option configures Build and New.
type Option func(*options)

// WithSeed makes weight initialization deterministic.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithBackend sets the compute backend (cpu.New() by default).
func WithBackend(b *cpu.CPUBackend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// withLearningRate overrides the SGD learning rate. Only tests use it; the
// digit classifier always trains with optim.DefaultLR.
func withLearningRate(lr float32) Option {
	return func(o *options) {
		o.learningRate = lr
	}
}

// New builds the digit classifier topology.
func New(opts ...Option) (*Model, error) {
	return Build(DigitInputShape(), DigitTopology(), opts...)
}

// Build interprets a layer list for the given per-example input shape.
//
// Errors wrap ErrModelBuild; a *BuildError names the offending layer.
func Build(input tensor.Shape, layers []LayerConfig, opts ...Option) (*Model, error) {
	o := options{learningRate: optim.DefaultLR}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = time.Now().UnixNano()
	}
	if o.backend == nil {
		o.backend = cpu.New()
	}

	if err := input.Validate(); err != nil {
		return nil, &BuildError{Index: -1, Reason: fmt.Sprintf("invalid input shape %v: %v", input, err)}
	}
	if len(layers) == 0 {
		return nil, &BuildError{Index: -1, Reason: "empty layer list"}
	}

	m := &Model{
		shapes:       []tensor.Shape{input.Clone()},
		backend:      o.backend,
		learningRate: o.learningRate,
	}
	rng := rand.New(rand.NewSource(o.seed)) //nolint:gosec // weight initialization is not security-critical

	counts := map[string]int{}
	for i, cfg := range layers {
		in := m.shapes[len(m.shapes)-1]
		layer, err := m.newLayer(cfg, in, counts, rng)
		if err == nil {
			var out tensor.Shape
			out, err = layer.OutputShape(in)
			if err == nil {
				m.layers = append(m.layers, layer)
				m.shapes = append(m.shapes, out)
				continue
			}
			releaseParameters(layer)
		}
		m.Close()
		return nil, &BuildError{Index: i, Layer: fmt.Sprint(cfg), Reason: err.Error()}
	}

	if out := m.OutputShape(); len(out) != 1 {
		m.Close()
		return nil, &BuildError{Index: -1, Reason: fmt.Sprintf("output must be a class vector, got %v", out)}
	}

	m.optimizer = optim.NewSGD(m.Parameters(), optim.SGDConfig{LR: o.learningRate})
	return m, nil
}

// newLayer instantiates one config. in is the input shape of that layer.
func (m *Model) newLayer(cfg LayerConfig, in tensor.Shape, counts map[string]int, rng *rand.Rand) (nn.Layer, error) {
	name := func(kind string) string {
		counts[kind]++
		return fmt.Sprintf("%s_%d", kind, counts[kind])
	}

	switch c := cfg.(type) {
	case Conv2D:
		if len(in) != 3 {
			return nil, fmt.Errorf("needs a [height, width, channels] input, got %v", in)
		}
		return nn.NewConv2D(name("conv2d"), in[2], c.Filters, c.Kernel, c.Stride, c.Activation, c.Init, rng, m.backend)
	case MaxPool2D:
		return nn.NewMaxPool2D(name("max_pooling2d"), c.Window, c.Stride, m.backend)
	case Flatten:
		return nn.NewFlatten(name("flatten")), nil
	case Dense:
		if len(in) != 1 {
			return nil, fmt.Errorf("needs a flat feature vector, got %v (add Flatten first)", in)
		}
		return nn.NewDense(name("dense"), in[0], c.Units, c.Activation, c.Init, rng, m.backend)
	case nil:
		return nil, fmt.Errorf("nil layer config")
	default:
		return nil, fmt.Errorf("unsupported layer config %T", cfg)
	}
}

// InputShape returns the per-example input shape.
func (m *Model) InputShape() tensor.Shape {
	return m.shapes[0].Clone()
}

// OutputShape returns the per-example output shape.
func (m *Model) OutputShape() tensor.Shape {
	return m.shapes[len(m.shapes)-1].Clone()
}

// Layers returns the instantiated layers in order.
func (m *Model) Layers() []nn.Layer {
	return m.layers
}

// Parameters returns all trainable parameters in layer order.
func (m *Model) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range m.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// NumParameters returns the number of trainable scalars.
func (m *Model) NumParameters() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// LearningRate returns the optimizer learning rate.
func (m *Model) LearningRate() float32 {
	return m.learningRate
}

// checkInput validates a batch tensor against the model input.
func (m *Model) checkInput(x *tensor.RawTensor) error {
	shape := x.Shape()
	if len(shape) != len(m.shapes[0])+1 || shape[0] <= 0 || !shape[1:].Equal(m.shapes[0]) {
		return fmt.Errorf("%w: got %v, want (N,%v)", ErrInputShape, shape, strings.Trim(m.shapes[0].String(), "()"))
	}
	return nil
}

// Forward runs inference on a batch shaped (N, input...).
//
// Every intermediate tensor and the returned output belong to s.
func (m *Model) Forward(s *tensor.Scope, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	out := x
	for _, l := range m.layers {
		out, _ = l.Forward(s, out)
	}
	return out, nil
}

// TrainStep runs one forward pass, backpropagates the loss and applies one
// SGD update to every parameter. It returns the mean batch loss.
//
// Gradients and activations belong to s; parameter gradients are cleared
// before returning so nothing outlives the scope.
func (m *Model) TrainStep(s *tensor.Scope, xs, ys *tensor.RawTensor) (float32, error) {
	if err := m.checkInput(xs); err != nil {
		return 0, err
	}
	batch := xs.Shape()[0]
	if want := (tensor.Shape{batch, m.shapes[len(m.shapes)-1][0]}); !ys.Shape().Equal(want) {
		return 0, fmt.Errorf("%w: labels %v, want %v", ErrInputShape, ys.Shape(), want)
	}

	caches := make([]nn.Cache, len(m.layers))
	out := xs
	for i, l := range m.layers {
		out, caches[i] = l.Forward(s, out)
	}

	loss, err := m.loss.Forward(out, ys)
	if err != nil {
		return 0, err
	}
	grad, err := m.loss.Backward(s, out, ys)
	if err != nil {
		return 0, err
	}

	defer m.optimizer.ZeroGrad()
	for i := len(m.layers) - 1; i >= 0; i-- {
		grad = m.layers[i].Backward(s, caches[i], grad, i > 0)
	}
	m.optimizer.Step()

	return loss, nil
}

// Summary renders the layer table: name, output shape and parameter count.
func (m *Model) Summary() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Layer\tOutput Shape\tParams\t")
	for i, l := range m.layers {
		n := 0
		for _, p := range l.Parameters() {
			n += p.Tensor().NumElements()
		}
		fmt.Fprintf(w, "%s (%s)\t(None,%s\t%d\t\n", l.Name(), l, strings.TrimPrefix(m.shapes[i+1].String(), "("), n)
	}
	_ = w.Flush()
	fmt.Fprintf(&b, "Total params: %d\n", m.NumParameters())
	fmt.Fprintf(&b, "Loss: %s, optimizer: %s\n", m.loss, m.optimizer)
	return b.String()
}

// Close releases all parameter tensors. The model is unusable afterwards.
func (m *Model) Close() {
	for _, l := range m.layers {
		releaseParameters(l)
	}
	m.layers = nil
}

func releaseParameters(l nn.Layer) {
	for _, p := range l.Parameters() {
		p.Release()
	}
}
