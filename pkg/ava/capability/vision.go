// Package capability – vision.go implements image-to-text via a
// vision-capable chat completion model.
package capability

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultVisionModel is Groq's hosted vision model.
const defaultVisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"

// defaultVisionPrompt is used when the caller supplies no caption.
const defaultVisionPrompt = "Please describe what you see in this image."

// ImageToText describes images through a vision chat completion model.
type ImageToText struct {
	llm   *LLMClient
	model string
}

// NewImageToText creates an image description client from config.
func NewImageToText(cfg Config, logger *slog.Logger) *ImageToText {
	model := cfg.VisionModel
	if model == "" {
		model = defaultVisionModel
	}
	llm := NewLLMClient(cfg, logger)
	llm.model = model
	llm.logger = logger.With("component", "vision")
	llm.httpClient = &http.Client{Timeout: 90 * time.Second}
	return &ImageToText{llm: llm, model: model}
}

// Describe converts an image to a textual description. The prompt guides the
// description (an image caption from the user, typically); when empty a
// generic describe instruction is used.
// Fails on empty image data or an empty model response.
func (v *ImageToText) Describe(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image data is empty")
	}
	if prompt == "" {
		prompt = defaultVisionPrompt
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	parts := []contentPart{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
	}

	result, err := v.llm.complete(ctx, chatRequest{
		Model:     v.model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: 1000,
	})
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	if strings.TrimSpace(result) == "" {
		return "", fmt.Errorf("no response from vision model")
	}
	return result, nil
}
