package diagnosis

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Canonical protocol constants shared with the classification service
const (
	CanonicalSize = 384
	JPEGQuality   = 0.95
)

// NormalizeForSubmission crops the centered square of side min(w, h) and
// stretches it to size x size.
func NormalizeForSubmission(img image.Image, size int) *image.NRGBA {
	bounds := img.Bounds()
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}

	square := imaging.CropCenter(img, side, side)
	return imaging.Resize(square, size, size, imaging.Lanczos)
}

// EncodeJPEG encodes img as JPEG; quality is in (0, 1]
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, newError(KindEncoding, fmt.Errorf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy()))
	}

	q := int(math.Round(quality * 100))
	if q < 1 || q > 100 {
		return nil, newError(KindEncoding, errors.New("jpeg quality must be in (0, 1]"))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, newError(KindEncoding, err)
	}
	return buf.Bytes(), nil
}

// PrepareImage normalizes img to the canonical size and encodes it as JPEG
func PrepareImage(img image.Image, size int, quality float64) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, newError(KindEncoding, fmt.Errorf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy()))
	}
	return EncodeJPEG(NormalizeForSubmission(img, size), quality)
}
