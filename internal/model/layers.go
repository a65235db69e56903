package model

import (
	"fmt"

	"github.com/born-ml/digitpad/internal/nn"
)

// LayerConfig is one entry of a typed layer list interpreted by Build.
//
// The implementations are Conv2D, MaxPool2D, Flatten and Dense.
type LayerConfig interface {
	fmt.Stringer
	layerConfig()
}

// Conv2D declares a convolution with square kernels and no padding.
type Conv2D struct {
	Filters    int
	Kernel     int
	Stride     int
	Activation nn.Activation
	Init       nn.Initializer // nn.VarianceScaling{} when nil
}

// MaxPool2D declares max pooling with square windows.
type MaxPool2D struct {
	Window int
	Stride int
}

// Flatten declares a reshape to one feature vector per example.
type Flatten struct{}

// Dense declares a fully connected layer.
type Dense struct {
	Units      int
	Activation nn.Activation
	Init       nn.Initializer // nn.VarianceScaling{} when nil
}

func (Conv2D) layerConfig()    {}
func (MaxPool2D) layerConfig() {}
func (Flatten) layerConfig()   {}
func (Dense) layerConfig()     {}

func (c Conv2D) String() string {
	return fmt.Sprintf("Conv2D{filters=%d kernel=%d stride=%d activation=%s}", c.Filters, c.Kernel, c.Stride, c.Activation)
}

func (c MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D{window=%d stride=%d}", c.Window, c.Stride)
}

func (Flatten) String() string { return "Flatten{}" }

func (c Dense) String() string {
	return fmt.Sprintf("Dense{units=%d activation=%s}", c.Units, c.Activation)
}

// Image geometry of the digit classifier.
const (
	ImageSize  = 28
	Channels   = 1
	NumClasses = 10
)

// DigitTopology returns the fixed layer list of the digit classifier:
// two conv+pool stages, flatten, and a softmax projection to 10 classes.
//
//	(28,28,1) -> conv (24,24,8) -> pool (12,12,8) -> conv (8,8,16) -> pool (4,4,16) -> 256 -> 10
func DigitTopology() []LayerConfig {
	return []LayerConfig{
		Conv2D{Filters: 8, Kernel: 5, Stride: 1, Activation: nn.ReLU, Init: nn.VarianceScaling{}},
		MaxPool2D{Window: 2, Stride: 2},
		Conv2D{Filters: 16, Kernel: 5, Stride: 1, Activation: nn.ReLU, Init: nn.VarianceScaling{}},
		MaxPool2D{Window: 2, Stride: 2},
		Flatten{},
		Dense{Units: NumClasses, Activation: nn.Softmax, Init: nn.VarianceScaling{}},
	}
}
