package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/menta2k/derm-dx/pkg/types"
)

// Background is the letterbox color of the canvas
var Background = color.NRGBA{0, 0, 0, 255}

// Compositor places a source image onto a square canvas
type Compositor struct {
	config Config
}

// Config holds configuration for compositing
type Config struct {
	Background color.Color
	Kernel     draw.Interpolator
}

// New creates a new Compositor with a black background and Catmull-Rom scaling
func New() *Compositor {
	return &Compositor{
		config: Config{
			Background: Background,
			Kernel:     draw.CatmullRom,
		},
	}
}

// NewWithConfig creates a new Compositor with custom configuration
func NewWithConfig(config Config) *Compositor {
	if config.Background == nil {
		config.Background = Background
	}
	if config.Kernel == nil {
		config.Kernel = draw.CatmullRom
	}
	return &Compositor{config: config}
}

// FillScale returns the minimum zoom factor for a source of the given size:
// 1 for portrait sources and 1/aspect for square or landscape ones.
func FillScale(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1.0
	}
	aspect := float64(width) / float64(height)
	if aspect < 1 {
		return 1.0
	}
	return 1.0 / aspect
}

// InitialTransform is the centered placement at the fill scale
func InitialTransform(width, height int) types.CropTransform {
	return types.CropTransform{Scale: FillScale(width, height)}
}

// ClampScale raises the transform scale to the fill scale of the source if needed
func ClampScale(t types.CropTransform, width, height int) types.CropTransform {
	t.Scale = math.Max(FillScale(width, height), t.Scale)
	return t
}

// PlacementSize returns the aspect-preserving size that fills the canvas on
// the binding axis: width for portrait sources, height otherwise.
func PlacementSize(width, height, canvasSize int) (float64, float64) {
	aspect := float64(width) / float64(height)
	size := float64(canvasSize)
	if aspect < 1 {
		return size, size / aspect
	}
	return size * aspect, size
}

// DrawRect returns the canvas rectangle the source is drawn into
func DrawRect(width, height, canvasSize int, t types.CropTransform) image.Rectangle {
	baseW, baseH := PlacementSize(width, height, canvasSize)
	drawW := baseW * t.Scale
	drawH := baseH * t.Scale

	center := float64(canvasSize) / 2
	x := center - drawW/2 + t.Offset.X
	y := center - drawH/2 + t.Offset.Y

	return image.Rect(
		int(math.Round(x)),
		int(math.Round(y)),
		int(math.Round(x+drawW)),
		int(math.Round(y+drawH)),
	)
}

// Compose draws src onto a canvasSize x canvasSize canvas using the transform.
// Source pixels outside the canvas are clipped, uncovered canvas stays background.
func (c *Compositor) Compose(src image.Image, canvasSize int, t types.CropTransform) *image.NRGBA {
	canvas := imaging.New(canvasSize, canvasSize, c.config.Background)

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return canvas
	}

	dr := DrawRect(bounds.Dx(), bounds.Dy(), canvasSize, t)
	if dr.Empty() {
		return canvas
	}

	dr, sr := visiblePart(dr, bounds, canvas.Bounds(), c.support())
	if dr.Empty() || sr.Empty() {
		return canvas
	}

	c.config.Kernel.Scale(canvas, dr, src, sr, draw.Over, nil)
	return canvas
}

// support is the kernel radius in source pixels at unit scale
func (c *Compositor) support() float64 {
	if k, ok := c.config.Kernel.(*draw.Kernel); ok {
		return k.Support
	}
	return 1
}

// visiblePart narrows the dr/sr pair to the source pixels that land inside
// clip, keeping enough extra source pixels on each side for the kernel.
func visiblePart(dr, sr, clip image.Rectangle, support float64) (image.Rectangle, image.Rectangle) {
	vis := dr.Intersect(clip)
	if vis.Empty() {
		return image.Rectangle{}, image.Rectangle{}
	}

	kx := float64(dr.Dx()) / float64(sr.Dx())
	ky := float64(dr.Dy()) / float64(sr.Dy())
	x0, x1 := visibleSpan(vis.Min.X-dr.Min.X, vis.Max.X-dr.Min.X, kx, sr.Dx(), support)
	y0, y1 := visibleSpan(vis.Min.Y-dr.Min.Y, vis.Max.Y-dr.Min.Y, ky, sr.Dy(), support)

	sub := image.Rect(sr.Min.X+x0, sr.Min.Y+y0, sr.Min.X+x1, sr.Min.Y+y1)
	out := image.Rect(
		dr.Min.X+int(math.Round(float64(x0)*kx)),
		dr.Min.Y+int(math.Round(float64(y0)*ky)),
		dr.Min.X+int(math.Round(float64(x1)*kx)),
		dr.Min.Y+int(math.Round(float64(y1)*ky)),
	)
	return out, sub
}

// visibleSpan maps the destination span [d0, d1) to source indexes at k
// destination pixels per source pixel, widened by the kernel footprint and
// limited to [0, n).
func visibleSpan(d0, d1 int, k float64, n int, support float64) (int, int) {
	margin := int(math.Ceil(support*math.Max(1, 1/k))) + 1
	s0 := int(math.Floor(float64(d0)/k)) - margin
	s1 := int(math.Ceil(float64(d1)/k)) + margin
	return max(s0, 0), min(s1, n)
}

// Compose draws src onto a square canvas with the default compositor
func Compose(src image.Image, canvasSize int, t types.CropTransform) *image.NRGBA {
	return New().Compose(src, canvasSize, t)
}
