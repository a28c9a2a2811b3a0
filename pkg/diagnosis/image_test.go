package diagnosis

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// createTestImage creates a gradient test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func TestNormalizeForSubmission(t *testing.T) {
	sizes := [][2]int{{384, 384}, {640, 480}, {480, 640}, {1, 1}, {3000, 17}, {100, 100}}

	for _, sz := range sizes {
		out := NormalizeForSubmission(createTestImage(sz[0], sz[1]), CanonicalSize)
		if out.Bounds().Dx() != CanonicalSize || out.Bounds().Dy() != CanonicalSize {
			t.Errorf("source %dx%d: expected %dx%d, got %dx%d", sz[0], sz[1],
				CanonicalSize, CanonicalSize, out.Bounds().Dx(), out.Bounds().Dy())
		}
	}
}

func TestNormalizeForSubmissionCentersCrop(t *testing.T) {
	// Left third red, middle third green, right third blue
	img := image.NewRGBA(image.Rect(0, 0, 300, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 300; x++ {
			switch {
			case x < 100:
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			case x < 200:
				img.Set(x, y, color.RGBA{0, 255, 0, 255})
			default:
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}

	out := NormalizeForSubmission(img, 64)
	c := out.NRGBAAt(32, 32)
	if c.G < 200 || c.R > 50 || c.B > 50 {
		t.Errorf("Expected the centered green square, got %v", c)
	}
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	data, err := PrepareImage(createTestImage(800, 600), CanonicalSize, JPEGQuality)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode failed: %v", err)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() != CanonicalSize || bounds.Dy() != CanonicalSize {
		t.Errorf("Expected %dx%d after round trip, got %dx%d", CanonicalSize, CanonicalSize, bounds.Dx(), bounds.Dy())
	}
}

func TestEncodeJPEGRejectsEmptyImage(t *testing.T) {
	_, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 0, 0)), JPEGQuality)
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("Expected ErrEncoding, got %v", err)
	}

	_, err = PrepareImage(image.NewRGBA(image.Rect(0, 0, 10, 0)), CanonicalSize, JPEGQuality)
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("Expected ErrEncoding for zero-height image, got %v", err)
	}
}

func TestEncodeJPEGRejectsBadQuality(t *testing.T) {
	for _, q := range []float64{0, -1, 1.5} {
		if _, err := EncodeJPEG(createTestImage(8, 8), q); !errors.Is(err, ErrEncoding) {
			t.Errorf("quality %f: expected ErrEncoding, got %v", q, err)
		}
	}
}
