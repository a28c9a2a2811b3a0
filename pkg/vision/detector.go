// Package vision locates the lesion in a photo so the crop can start centered on it.
package vision

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/derm-dx/pkg/compositor"
	"github.com/menta2k/derm-dx/pkg/types"
)

// LesionDetector finds the darkest high-contrast region of a skin photo
type LesionDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for lesion detection
type DetectionConfig struct {
	EdgeWeight     float64
	DarknessWeight float64
	// WindowRatio is the search window side relative to the shorter image side
	WindowRatio float64
	// AnalysisSize bounds the longer side of the downscaled analysis copy
	AnalysisSize int
}

// New creates a new LesionDetector with default configuration
func New() *LesionDetector {
	return &LesionDetector{
		config: DetectionConfig{
			EdgeWeight:     0.4,
			DarknessWeight: 0.6,
			WindowRatio:    0.2,
			AnalysisSize:   256,
		},
	}
}

// NewWithConfig creates a new LesionDetector with custom configuration
func NewWithConfig(config DetectionConfig) *LesionDetector {
	if config.WindowRatio <= 0 || config.WindowRatio > 1 {
		config.WindowRatio = 0.2
	}
	if config.AnalysisSize <= 0 {
		config.AnalysisSize = 256
	}
	return &LesionDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// DetectLesion returns the most salient window in source pixel coordinates,
// relative to the image bounds. A uniform image yields the centered window.
func (d *LesionDetector) DetectLesion(img image.Image) (Region, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return Region{}, fmt.Errorf("image too small for lesion detection: %dx%d", b.Dx(), b.Dy())
	}

	small := imaging.Fit(img, d.config.AnalysisSize, d.config.AnalysisSize, imaging.Box)
	w, h := small.Bounds().Dx(), small.Bounds().Dy()

	saliency := d.saliencyMap(small)
	region := d.bestWindow(saliency, w, h)

	// Back to source coordinates
	fx := float64(b.Dx()) / float64(w)
	fy := float64(b.Dy()) / float64(h)
	return Region{
		X:      int(math.Round(float64(region.X) * fx)),
		Y:      int(math.Round(float64(region.Y) * fy)),
		Width:  int(math.Round(float64(region.Width) * fx)),
		Height: int(math.Round(float64(region.Height) * fy)),
		Score:  region.Score,
	}, nil
}

// SuggestTransform places the detected lesion at the canvas center at the
// given scale (raised to the fill scale), keeping the canvas covered where the
// drawn image is large enough to allow it.
func (d *LesionDetector) SuggestTransform(img image.Image, canvasSize int, scale float64) (types.CropTransform, error) {
	region, err := d.DetectLesion(img)
	if err != nil {
		return types.CropTransform{}, err
	}

	b := img.Bounds()
	t := compositor.ClampScale(types.CropTransform{Scale: scale}, b.Dx(), b.Dy())

	cx, cy := region.Center()
	baseW, baseH := compositor.PlacementSize(b.Dx(), b.Dy(), canvasSize)
	drawW, drawH := baseW*t.Scale, baseH*t.Scale

	t.Offset = types.Offset{
		X: centeringOffset(float64(cx)/float64(b.Dx()), drawW, float64(canvasSize)),
		Y: centeringOffset(float64(cy)/float64(b.Dy()), drawH, float64(canvasSize)),
	}
	return t, nil
}

// centeringOffset moves the point at fraction p of the drawn extent to the
// canvas center, limited so the drawn extent still spans the canvas
func centeringOffset(p, drawn, canvas float64) float64 {
	if drawn <= canvas {
		return 0
	}
	limit := (drawn - canvas) / 2
	return math.Max(-limit, math.Min(limit, drawn*(0.5-p)))
}

func luminance(c [4]uint8) float64 {
	return (0.299*float64(c[0]) + 0.587*float64(c[1]) + 0.114*float64(c[2])) / 255.0
}

func (d *LesionDetector) saliencyMap(img *image.NRGBA) [][]float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	lum := make([][]float64, h)
	var mean float64
	for y := 0; y < h; y++ {
		lum[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			px := [4]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
			lum[y][x] = luminance(px)
			mean += lum[y][x]
		}
	}
	mean /= float64(w * h)

	saliency := make([][]float64, h)
	for y := 0; y < h; y++ {
		saliency[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			// Edge strength against the 4-neighborhood
			var edge float64
			n := 0
			for _, o := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				edge += math.Abs(lum[y][x] - lum[ny][nx])
				n++
			}
			if n > 0 {
				edge /= float64(n)
			}

			darkness := math.Max(0, mean-lum[y][x])
			saliency[y][x] = d.config.EdgeWeight*edge + d.config.DarknessWeight*darkness
		}
	}

	return saliency
}

// minSaliency keeps rounding noise on uniform images from moving the window
const minSaliency = 1e-6

// bestWindow scans square windows over a summed-area table of the saliency map
func (d *LesionDetector) bestWindow(saliency [][]float64, width, height int) Region {
	side := int(math.Round(d.config.WindowRatio * float64(min(width, height))))
	if side < 1 {
		side = 1
	}

	sat := make([][]float64, height+1)
	for y := range sat {
		sat[y] = make([]float64, width+1)
	}
	for y := 1; y <= height; y++ {
		for x := 1; x <= width; x++ {
			sat[y][x] = saliency[y-1][x-1] + sat[y-1][x] + sat[y][x-1] - sat[y-1][x-1]
		}
	}

	best := Region{
		X:      (width - side) / 2,
		Y:      (height - side) / 2,
		Width:  side,
		Height: side,
	}
	area := float64(side * side)

	for y := 0; y+side <= height; y++ {
		for x := 0; x+side <= width; x++ {
			sum := sat[y+side][x+side] - sat[y][x+side] - sat[y+side][x] + sat[y][x]
			score := sum / area
			if score > best.Score && score > minSaliency {
				best = Region{X: x, Y: y, Width: side, Height: side, Score: score}
			}
		}
	}

	return best
}
