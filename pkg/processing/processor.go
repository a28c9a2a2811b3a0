package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the declared width x height of decoded images
const DefaultMaxPixels = 50_000_000

// ErrImageTooLarge is returned when an image header declares more pixels than allowed
var ErrImageTooLarge = errors.New("image dimensions exceed limit")

// Processor loads and saves lesion photos
type Processor struct {
	httpClient   *http.Client
	minImageSize int
	maxPixels    int
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		minImageSize: 1,
		maxPixels:    DefaultMaxPixels,
	}
}

// SetMaxPixels changes the pixel limit applied before decoding image bytes
func (p *Processor) SetMaxPixels(n int) {
	if n > 0 {
		p.maxPixels = n
	}
}

// NewProcessorWithMinSize creates a processor that rejects images smaller than minSize on either side
func NewProcessorWithMinSize(minSize int) *Processor {
	p := NewProcessor()
	if minSize > 0 {
		p.minImageSize = minSize
	}
	return p
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "derm-dx/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.DecodeImage(imageData)
}

// LoadImage loads an image from a file path, applying EXIF orientation
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return p.validated(img)
	}

	// Fallback: explicit WebP decode
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w for %s", err, path)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// DecodeImage decodes image bytes with WebP support. Images whose header
// declares more than the pixel limit fail with ErrImageTooLarge before any
// pixel data is decoded.
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if err := p.checkDimensions(data); err != nil {
		return nil, err
	}

	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return p.validated(img)
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return p.validated(img)
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

func (p *Processor) checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if cfg, err = webp.DecodeConfig(bytes.NewReader(data)); err != nil {
			// Unreadable header, the decoders report the format error
			return nil
		}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(p.maxPixels) {
		return fmt.Errorf("%w: %dx%d (maximum %d pixels)", ErrImageTooLarge, cfg.Width, cfg.Height, p.maxPixels)
	}
	return nil
}

// ValidateImage checks if an image meets the minimum size
func (p *Processor) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < p.minImageSize || bounds.Dy() < p.minImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), p.minImageSize)
	}
	return nil
}

func (p *Processor) validated(img image.Image) (image.Image, error) {
	if err := p.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// createFile opens an output file for writing
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := createFile(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg", "":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
