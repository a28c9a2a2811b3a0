// Package dermdx crops skin lesion photos onto a square canvas and submits
// them to a remote classifier for a benign/malignant diagnosis.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		dermdx "github.com/menta2k/derm-dx"
//		"github.com/menta2k/derm-dx/pkg/diagnosis"
//	)
//
//	func main() {
//		classifier, err := diagnosis.NewClient(diagnosis.Config{
//			EndpointURL: "https://example.com/predict",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		pipeline := dermdx.New(classifier, 512)
//
//		// Load the photo and diagnose it at the initial crop
//		result, err := pipeline.DiagnoseFile(context.Background(), "lesion.jpg", nil)
//		if err != nil {
//			log.Fatal(diagnosis.UserMessage(err))
//		}
//
//		fmt.Printf("%s (%s)\n", result.Class, result.ConfidencePercent())
//	}
//
// The package consists of these main components:
//
// 1. Compositor (pkg/compositor): places a photo on the square crop canvas
// 2. Diagnosis (pkg/diagnosis): normalizes, encodes and uploads the crop
// 3. Session (pkg/session): tracks one capture through crop and submission
// 4. Server (pkg/server): upload and prediction endpoints over HTTP
// 5. Vision (pkg/vision): locates the lesion to suggest a starting crop
//
// Local vision models can stand in for the remote service through the
// pkg/ollama and pkg/llamacpp classifiers.
package dermdx

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/compositor"
	"github.com/menta2k/derm-dx/pkg/processing"
	"github.com/menta2k/derm-dx/pkg/session"
	"github.com/menta2k/derm-dx/pkg/types"
	"github.com/menta2k/derm-dx/pkg/vision"
)

// Version of the derm-dx library
const Version = "1.0.0"

// DefaultCanvasSize is the side of the crop canvas when none is given
const DefaultCanvasSize = 512

// Pipeline composes photos and hands them to a classifier
type Pipeline struct {
	compositor *compositor.Compositor
	classifier client.Classifier
	processor  *processing.Processor
	detector   *vision.LesionDetector
	canvasSize int
}

// New creates a Pipeline with the default compositor and image processor
func New(classifier client.Classifier, canvasSize int) *Pipeline {
	if canvasSize <= 0 {
		canvasSize = DefaultCanvasSize
	}
	return &Pipeline{
		compositor: compositor.New(),
		classifier: classifier,
		processor:  processing.NewProcessor(),
		detector:   vision.New(),
		canvasSize: canvasSize,
	}
}

// CanvasSize returns the side of the crop canvas
func (p *Pipeline) CanvasSize() int {
	return p.canvasSize
}

// LoadImage loads a photo from a file path or URL
func (p *Pipeline) LoadImage(source string) (image.Image, error) {
	return p.processor.LoadImageSmart(source)
}

// Compose places img on the canvas. A nil transform uses the initial placement;
// otherwise the scale is raised to the fill scale if needed.
func (p *Pipeline) Compose(img image.Image, t *types.CropTransform) *image.NRGBA {
	return p.compositor.Compose(img, p.canvasSize, p.transformFor(img, t))
}

// Diagnose composes img and classifies the result
func (p *Pipeline) Diagnose(ctx context.Context, img image.Image, t *types.CropTransform) (*types.DiagnosisResult, error) {
	if p.classifier == nil {
		return nil, fmt.Errorf("no classifier configured")
	}
	return p.classifier.Classify(ctx, p.Compose(img, t))
}

// DiagnoseFile loads a photo from a path or URL and diagnoses it
func (p *Pipeline) DiagnoseFile(ctx context.Context, source string, t *types.CropTransform) (*types.DiagnosisResult, error) {
	img, err := p.LoadImage(source)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return p.Diagnose(ctx, img, t)
}

// AutoCenter suggests a placement at the given scale that centers the detected lesion
func (p *Pipeline) AutoCenter(img image.Image, scale float64) (types.CropTransform, error) {
	return p.detector.SuggestTransform(img, p.canvasSize, scale)
}

// NewSession starts an interactive capture session for img
func (p *Pipeline) NewSession(img image.Image) *session.Session {
	return session.New(p.classifier, img, p.canvasSize)
}

func (p *Pipeline) transformFor(img image.Image, t *types.CropTransform) types.CropTransform {
	b := img.Bounds()
	if t == nil {
		return compositor.InitialTransform(b.Dx(), b.Dy())
	}
	return compositor.ClampScale(*t, b.Dx(), b.Dy())
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
