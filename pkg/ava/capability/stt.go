// Package capability – stt.go implements speech-to-text via a
// Whisper-compatible multipart transcription endpoint.
package capability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// defaultWhisperModel is Groq's hosted Whisper variant.
const defaultWhisperModel = "whisper-large-v3-turbo"

// SpeechToText transcribes audio through a Whisper-compatible API.
type SpeechToText struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSpeechToText creates a transcription client from config.
func NewSpeechToText(cfg Config, logger *slog.Logger) *SpeechToText {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.WhisperModel
	if model == "" {
		model = defaultWhisperModel
	}
	return &SpeechToText{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("component", "stt"),
	}
}

// Transcribe converts audio bytes to text.
// Fails on empty audio or an empty transcription result.
func (s *SpeechToText) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio data cannot be empty")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio data: %w", err)
	}
	_ = writer.WriteField("model", s.model)
	_ = writer.WriteField("language", "en")
	_ = writer.WriteField("response_format", "text")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading transcription: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API returned %d: %s", resp.StatusCode, truncateForLog(string(body)))
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("transcription result is empty")
	}

	s.logger.Debug("audio transcribed", "chars", len(text))
	return text, nil
}
