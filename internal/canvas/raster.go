package canvas

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
)

// Point is a position on a Raster in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Raster is an in-memory drawing surface painted with a round brush.
//
// It is safe for concurrent use.
type Raster struct {
	mu          sync.Mutex
	img         *image.RGBA
	background  color.Color
	ink         color.Color
	strokeWidth float64
}

// RasterOption configures NewRaster.
type RasterOption func(*Raster)

// WithColors sets the background and ink colours (black and white by default,
// like the training digits).
func WithColors(background, ink color.Color) RasterOption {
	return func(r *Raster) {
		r.background = background
		r.ink = ink
	}
}

// WithStrokeWidth sets the brush diameter in pixels.
func WithStrokeWidth(w float64) RasterOption {
	return func(r *Raster) {
		r.strokeWidth = w
	}
}

// NewRaster creates a cleared width x height surface.
func NewRaster(width, height int, opts ...RasterOption) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid raster size %dx%d", ErrPreprocess, width, height)
	}
	r := &Raster{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		background:  color.Black,
		ink:         color.White,
		strokeWidth: float64(min(width, height)) / 14,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !(r.strokeWidth > 0) {
		return nil, fmt.Errorf("%w: invalid stroke width %v", ErrPreprocess, r.strokeWidth)
	}
	r.Clear()
	return r, nil
}

// Snapshot implements Surface. It returns a copy of the current pixels.
func (r *Raster) Snapshot() (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := image.NewRGBA(r.img.Bounds())
	copy(snap.Pix, r.img.Pix)
	return snap, nil
}

// Clear implements Surface.
func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(r.background), image.Point{}, draw.Src)
}

// Stroke paints a polyline. A single point paints a dot.
//
// Each segment costs at most one pass over the raster, however far its
// points lie outside it. Segments whose extent overflows float64 are skipped.
func (r *Raster) Stroke(points ...Point) {
	if len(points) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	radius := r.strokeWidth / 2
	if len(points) == 1 {
		r.segment(points[0], points[0], radius)
		return
	}
	for i := 1; i < len(points); i++ {
		r.segment(points[i-1], points[i], radius)
	}
}

// segment fills every pixel whose centre lies within radius of a-b.
func (r *Raster) segment(a, b Point, radius float64) {
	bounds := r.img.Bounds()
	x0, y0 := float64(bounds.Min.X), float64(bounds.Min.Y)
	x1, y1 := float64(bounds.Max.X), float64(bounds.Max.Y)
	a, b, ok := clipSegment(a, b, x0-radius, y0-radius, x1+radius, y1+radius)
	if !ok {
		return
	}

	minX := int(math.Max(math.Floor(min(a.X, b.X)-radius), x0))
	maxX := int(math.Min(math.Ceil(max(a.X, b.X)+radius), x1-1))
	minY := int(math.Max(math.Floor(min(a.Y, b.Y)-radius), y0))
	maxY := int(math.Min(math.Ceil(max(a.Y, b.Y)+radius), y1-1))

	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	r2 := radius * radius
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5 - a.X
			py := float64(y) + 0.5 - a.Y
			if l2 > 0 {
				t := min(max((px*dx+py*dy)/l2, 0), 1)
				px -= t * dx
				py -= t * dy
			}
			if px*px+py*py <= r2 {
				r.img.Set(x, y, r.ink)
			}
		}
	}
}

// clipSegment cuts a-b down to the part inside the given box (Liang-Barsky).
// ok is false when no part of it is inside, or when a coordinate is not
// finite.
func clipSegment(a, b Point, minX, minY, maxX, maxY float64) (Point, Point, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	for _, v := range []float64{a.X, a.Y, dx, dy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, b, false
		}
	}

	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = max(t0, t)
		} else {
			t1 = min(t1, t)
		}
	}
	if t0 > t1 {
		return a, b, false
	}
	return Point{X: a.X + dx*t0, Y: a.Y + dy*t0}, Point{X: a.X + dx*t1, Y: a.Y + dy*t1}, true
}

// Bounds returns the raster size.
func (r *Raster) Bounds() image.Rectangle {
	return r.img.Bounds()
}

// Image wraps a decoded image as a read-only Surface.
type Image struct {
	img image.Image
}

// FromImage returns a Surface over img. Clear is a no-op.
func FromImage(img image.Image) *Image {
	return &Image{img: img}
}

// Snapshot implements Surface.
func (i *Image) Snapshot() (image.Image, error) {
	if i.img == nil {
		return nil, fmt.Errorf("no image")
	}
	return i.img, nil
}

// Clear implements Surface.
func (i *Image) Clear() {}
