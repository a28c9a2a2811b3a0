package ollama

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/diagnosis"
	"github.com/menta2k/derm-dx/pkg/types"
)

// DefaultTimeout applies when the caller context has no deadline (vision models on CPU are slow)
const DefaultTimeout = 300 * time.Second

// Client classifies lesion images with an Ollama vision model
type Client struct {
	client *api.Client
	model  string
	prompt string
	logger zerolog.Logger

	size    int
	quality float64
}

// NewClient creates a new Ollama classifier
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}
	if model == "" {
		return nil, errors.New("model name is required")
	}

	// Base URL only; paths like /api/chat are added by the SDK
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		prompt: client.ClassificationPrompt,
		logger: log.Logger.With().Str("component", "ollama").Logger(),

		size:    diagnosis.CanonicalSize,
		quality: diagnosis.JPEGQuality,
	}, nil
}

// SetLogger replaces the client logger
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetImageFormat sets the side and JPEG quality of the submitted image.
// Non-positive values keep the current setting.
func (c *Client) SetImageFormat(size int, quality float64) {
	if size > 0 {
		c.size = size
	}
	if quality > 0 {
		c.quality = quality
	}
}

// Classify implements client.Classifier
func (c *Client) Classify(ctx context.Context, img image.Image) (*types.DiagnosisResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	imgBytes, err := diagnosis.PrepareImage(img, c.size, c.quality)
	if err != nil {
		return nil, err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": 0.0,
		},
	}

	c.logger.Debug().Str("model", c.model).Int("image_bytes", len(imgBytes)).Msg("Sending chat request")

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, &diagnosis.Error{Kind: diagnosis.KindNetwork, Err: fmt.Errorf("ollama chat error: %w", err)}
	}

	if strings.TrimSpace(responseContent) == "" {
		return nil, &diagnosis.Error{Kind: diagnosis.KindEmptyResponse}
	}

	return ParseResult(responseContent)
}

// ParseResult decodes a model reply into a diagnosis
func ParseResult(raw string) (*types.DiagnosisResult, error) {
	raw = client.SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, &diagnosis.Error{Kind: diagnosis.KindDecoding, Err: errors.New("model returned non-JSON response")}
	}

	result, err := diagnosis.DecodeResult([]byte(raw))
	if err != nil {
		return nil, err
	}
	result.Class = strings.ToLower(strings.TrimSpace(result.Class))
	return result, nil
}
