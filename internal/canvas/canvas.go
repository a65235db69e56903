// Package canvas turns drawing surfaces into model input tensors.
//
// A Surface is anything that can hand out its current pixels. Preprocess
// resizes those pixels to 28x28 with nearest-neighbour sampling, averages
// the colour channels and returns a (1,28,28,1) float32 tensor.
package canvas

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/born-ml/digitpad/internal/tensor"
)

// Size is the side length of the preprocessed image.
const Size = 28

// ErrPreprocess reports a surface whose pixels cannot be turned into a tensor.
var ErrPreprocess = errors.New("preprocess failed")

// Surface is a readable raster drawing area.
type Surface interface {
	// Snapshot returns the current pixels. The image must not change after
	// it is returned.
	Snapshot() (image.Image, error)

	// Clear resets the surface to its background.
	Clear()
}

// Options controls PreprocessWith.
type Options struct {
	// Normalize divides pixel values by 255. Without it values stay in the
	// captured 0..255 range.
	Normalize bool
}

// Preprocess converts the surface's pixels to a (1,28,28,1) tensor in the
// raw 0..255 range. The caller owns the returned tensor.
func Preprocess(s Surface) (*tensor.RawTensor, error) {
	return PreprocessWith(s, Options{})
}

// PreprocessWith converts the surface's pixels to a (1,28,28,1) tensor.
//
// Steps: snapshot, nearest-neighbour resize to 28x28, mean of R, G and B,
// conversion to float32 (divided by 255 when opts.Normalize is set).
// The same pixels always produce bit-identical tensors.
func PreprocessWith(s Surface, opts Options) (*tensor.RawTensor, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil surface", ErrPreprocess)
	}
	img, err := s.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", ErrPreprocess, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: empty snapshot", ErrPreprocess)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: zero-sized surface %v", ErrPreprocess, bounds)
	}

	small := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.NearestNeighbor.Scale(small, small.Bounds(), img, bounds, draw.Src, nil)

	out, err := tensor.NewRaw(tensor.Shape{1, Size, Size, 1})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreprocess, err)
	}
	dst := out.AsFloat32()
	for i := range dst {
		px := small.Pix[i*4 : i*4+3]
		v := (float32(px[0]) + float32(px[1]) + float32(px[2])) / 3
		if opts.Normalize {
			v /= 255
		}
		dst[i] = v
	}
	return out, nil
}

// ToImage renders a (28,28,1) or (1,28,28,1) tensor with values in [0,1]
// as a grayscale image, scaling by 255 and clamping.
func ToImage(t *tensor.RawTensor) (*image.Gray, error) {
	shape := t.Shape()
	if shape.NumElements() != Size*Size || (len(shape) != 3 && len(shape) != 4) {
		return nil, fmt.Errorf("canvas: cannot render tensor of shape %v", shape)
	}
	img := image.NewGray(image.Rect(0, 0, Size, Size))
	for i, v := range t.AsFloat32() {
		img.Pix[i] = uint8(min(max(v*255, 0), 255))
	}
	return img, nil
}
