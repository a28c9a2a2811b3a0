package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/derm-dx/internal/utils"
	"github.com/menta2k/derm-dx/pkg/types"
)

// Phase is a step of a single submission
type Phase int

const (
	PhaseEncoding Phase = iota + 1
	PhaseTransmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseEncoding:
		return "encoding"
	case PhaseTransmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}

// Config holds configuration for the diagnosis client
type Config struct {
	EndpointURL   string
	CanonicalSize int
	JPEGQuality   float64
	// Timeout of zero leaves the transport defaults in place
	Timeout time.Duration
	// RequireSuccessStatus turns non-2xx responses into network errors
	RequireSuccessStatus bool
	HTTPClient           *http.Client
	Logger               *zerolog.Logger
}

// Client submits lesion images to the classification service
type Client struct {
	endpoint      string
	size          int
	quality       float64
	requireStatus bool
	httpClient    *http.Client
	logger        zerolog.Logger
}

// Outcome is the single result delivered by SubmitAsync
type Outcome struct {
	Result *types.DiagnosisResult
	Err    error
}

// NewClient creates a new diagnosis client
func NewClient(cfg Config) (*Client, error) {
	parsed, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint URL scheme: %q (only http and https are supported)", parsed.Scheme)
	}

	if cfg.CanonicalSize <= 0 {
		cfg.CanonicalSize = CanonicalSize
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = JPEGQuality
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		endpoint:      parsed.String(),
		size:          cfg.CanonicalSize,
		quality:       cfg.JPEGQuality,
		requireStatus: cfg.RequireSuccessStatus,
		httpClient:    httpClient,
		logger:        logger.With().Str("component", "diagnosis").Logger(),
	}, nil
}

// Endpoint returns the configured service URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Classify implements client.Classifier
func (c *Client) Classify(ctx context.Context, img image.Image) (*types.DiagnosisResult, error) {
	return c.Submit(ctx, img)
}

// Submit normalizes, encodes and posts img, returning the decoded diagnosis
func (c *Client) Submit(ctx context.Context, img image.Image) (*types.DiagnosisResult, error) {
	return c.SubmitObserved(ctx, img, nil)
}

// SubmitAsync runs Submit in the background. The channel is buffered and
// receives exactly one Outcome, so abandoning it does not leak the goroutine.
// Cancel ctx to abort the request.
func (c *Client) SubmitAsync(ctx context.Context, img image.Image) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		result, err := c.Submit(ctx, img)
		out <- Outcome{Result: result, Err: err}
	}()
	return out
}

// SubmitObserved is Submit with a callback invoked as each phase starts
func (c *Client) SubmitObserved(ctx context.Context, img image.Image, observe func(Phase)) (*types.DiagnosisResult, error) {
	notify := func(p Phase) {
		if observe != nil {
			observe(p)
		}
	}

	notify(PhaseEncoding)
	imageData, err := PrepareImage(img, c.size, c.quality)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to prepare image")
		return nil, err
	}

	boundary := NewBoundary()
	body := BuildMultipartBody(imageData, boundary)

	c.logger.Info().
		Str("endpoint", c.endpoint).
		Str("image_size", utils.FormatFileSize(int64(len(imageData)))).
		Msg("Sending diagnosis request")

	notify(PhaseTransmitting)
	respBody, err := c.sendRequest(ctx, body, boundary)
	if err != nil {
		return nil, err
	}

	result, err := DecodeResult(respBody)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decode response")
		return nil, err
	}

	c.logger.Info().
		Str("class", result.Class).
		Float64("confidence", result.Confidence).
		Float64("prediction", result.Prediction).
		Msg("Diagnosis received")

	return result, nil
}

func (c *Client) sendRequest(ctx context.Context, body []byte, boundary string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindNetwork, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", FormDataContentType(boundary))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("API request error")
		return nil, newError(KindNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Int("status", resp.StatusCode).Msg("Failed to read response")
		return nil, newError(KindNetwork, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("body", string(respBody)).
		Msg("API response")

	if c.requireStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, newError(KindNetwork, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	if len(respBody) == 0 {
		return nil, newError(KindEmptyResponse, nil)
	}

	return respBody, nil
}

// DecodeResult tolerant-decodes a classification payload
func DecodeResult(data []byte) (*types.DiagnosisResult, error) {
	var result types.DiagnosisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, newError(KindDecoding, err)
	}
	return &result, nil
}
