// Package capability – llm.go implements the chat completion client used for
// answering, routing, and structured extraction.
// Uses the OpenAI-compatible API format, which works with Groq (the default),
// OpenAI, and any compatible endpoint.
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// assistantSystemPrompt keeps answers compact for chat-channel delivery.
const assistantSystemPrompt = "You are a helpful assistant. Give responses in just one line always."

// routerSystemPrompt constrains the model to the closed decision vocabulary.
const routerSystemPrompt = "You are a precise routing agent. Return only one of these valid responses: " +
	"DIRECT, USE_SHORT_TERM, USE_LONG_TERM, SUMMARIZE_TODAY, NEWS, SEND_EMAIL, NONE, YES, or NO. " +
	"Never explain. Never justify. Just reply with the keyword."

// Config holds the connection settings shared by the capability clients.
type Config struct {
	// BaseURL is the OpenAI-compatible API root (default: Groq).
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// Model is the chat completion model (e.g. "llama-3.3-70b-versatile").
	Model string `yaml:"model"`

	// VisionModel is the model used for image understanding.
	VisionModel string `yaml:"vision_model"`

	// WhisperModel is the model used for audio transcription.
	WhisperModel string `yaml:"whisper_model"`
}

// LLMClient handles chat completion requests against the provider API.
type LLMClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a chat completion client from config.
func NewLLMClient(cfg Config, logger *slog.Logger) *LLMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &LLMClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("component", "llm"),
	}
}

// ---------- Wire Types ----------

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// contentPart is one element of a multimodal user message.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// ---------- Low-Level Completion ----------

// Complete sends a chat completion request and returns the text, or an error.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userMessage string, temperature float64) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userMessage})

	return c.complete(ctx, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: &temperature,
	})
}

func (c *LLMClient) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("API returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("API returned %d: %s", resp.StatusCode, truncateForLog(string(data)))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// ---------- Sentinel Surfaces ----------
//
// The workflow consumes completions through Ask and AskRouter, which never
// fail: provider errors are encoded as an "Error: <detail>" reply so every
// stage can keep moving and pick its own safe default.

// Ask answers a prompt with the assistant persona. Failures are encoded as
// an "Error: ..." string, never returned as an error.
func (c *LLMClient) Ask(ctx context.Context, prompt string) string {
	reply, err := c.Complete(ctx, assistantSystemPrompt, prompt, 0.3)
	if err != nil {
		c.logger.Error("completion failed", "error", err)
		return "Error: " + err.Error()
	}
	return reply
}

// AskRouter answers a prompt with the constrained routing persona at
// temperature zero. Failures are encoded as an "Error: ..." string.
func (c *LLMClient) AskRouter(ctx context.Context, prompt string) string {
	temp := 0.0
	reply, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: routerSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		c.logger.Error("routing completion failed", "error", err)
		return "Error: " + err.Error()
	}
	return reply
}

func truncateForLog(s string) string {
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
