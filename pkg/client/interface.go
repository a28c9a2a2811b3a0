package client

import (
	"context"
	"image"

	"github.com/menta2k/derm-dx/pkg/types"
)

// Classifier produces a diagnosis for a lesion image
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (*types.DiagnosisResult, error)
}
