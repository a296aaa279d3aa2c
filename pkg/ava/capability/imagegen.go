// Package capability – imagegen.go implements text-to-image generation
// through an OpenAI-compatible /images/generations endpoint (Together AI by
// default, serving the free FLUX.1-schnell model).
package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultImageBaseURL = "https://api.together.xyz/v1"
	defaultImageModel   = "black-forest-labs/FLUX.1-schnell-Free"
)

// ImageGenConfig configures the text-to-image client.
type ImageGenConfig struct {
	// BaseURL is the image API root (default: Together AI).
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the image provider.
	APIKey string `yaml:"api_key"`

	// Model is the image generation model.
	Model string `yaml:"model"`
}

// ImageGenerator renders text prompts into images.
type ImageGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewImageGenerator creates a text-to-image client from config.
func NewImageGenerator(cfg ImageGenConfig, logger *slog.Logger) *ImageGenerator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultImageBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultImageModel
	}
	return &ImageGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger.With("component", "imagegen"),
	}
}

type imageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageGenResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate renders an image for the given prompt and returns the raw bytes.
// Fails on an empty prompt or an empty generation result.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	body, err := json.Marshal(imageGenRequest{
		Model:          g.model,
		Prompt:         prompt,
		Width:          1024,
		Height:         768,
		Steps:          4,
		N:              1,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed imageGenResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return nil, fmt.Errorf("image API returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("image API returned %d", resp.StatusCode)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation returned no data")
	}

	image, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}

	g.logger.Debug("image generated", "bytes", len(image))
	return image, nil
}
