package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/derm-dx/pkg/client"
	"github.com/menta2k/derm-dx/pkg/diagnosis"
	"github.com/menta2k/derm-dx/pkg/types"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	size       int
	quality    float64
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewClient(serverURL, model string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("unsupported server URL: %q", serverURL)
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		size:    diagnosis.CanonicalSize,
		quality: diagnosis.JPEGQuality,
	}, nil
}

// SetImageFormat overrides the submitted image side and JPEG quality; zero keeps the default
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
	imgBytes, err := diagnosis.PrepareImage(img, c.size, c.quality)
	if err != nil {
		return nil, err
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: client.ClassificationPrompt},
					{
						Type: "image_url",
						ImageURL: &ImageURL{
							URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imgBytes),
						},
					},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   256,
		Stream:      false,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return nil, err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &diagnosis.Error{Kind: diagnosis.KindDecoding, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &diagnosis.Error{Kind: diagnosis.KindEmptyResponse, Err: errors.New("no choices in response")}
	}

	text := messageText(resp.Choices[0].Message)
	if strings.TrimSpace(text) == "" {
		return nil, &diagnosis.Error{Kind: diagnosis.KindEmptyResponse}
	}

	raw := client.SanitizeModelJSON(text)
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

// messageText extracts text from string or array content
func messageText(m Message) string {
	switch content := m.Content.(type) {
	case string:
		return content
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &diagnosis.Error{Kind: diagnosis.KindEncoding, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &diagnosis.Error{Kind: diagnosis.KindNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &diagnosis.Error{Kind: diagnosis.KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &diagnosis.Error{Kind: diagnosis.KindNetwork, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &diagnosis.Error{Kind: diagnosis.KindNetwork, Err: &diagnosis.StatusError{StatusCode: resp.StatusCode, Body: string(body)}}
	}

	return body, nil
}
