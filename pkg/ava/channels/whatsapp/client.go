// Package whatsapp implements the WhatsApp Cloud API channel: a Graph API
// client for sending text and media, plus the webhook handler that receives
// inbound messages and runs them through the workflow.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultGraphURL = "https://graph.facebook.com/v21.0"

// Config holds WhatsApp Cloud API channel configuration.
type Config struct {
	// AccessToken is the Cloud API bearer token.
	AccessToken string `yaml:"access_token"`

	// PhoneNumberID identifies the business phone number sending replies.
	PhoneNumberID string `yaml:"phone_number_id"`

	// VerifyToken is the shared secret echoed during webhook verification.
	VerifyToken string `yaml:"verify_token"`

	// GraphURL overrides the Graph API root (tests).
	GraphURL string `yaml:"graph_url"`
}

// Client talks to the WhatsApp Cloud API.
type Client struct {
	cfg        Config
	graphURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Cloud API client from config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	graphURL := cfg.GraphURL
	if graphURL == "" {
		graphURL = defaultGraphURL
	}
	return &Client{
		cfg:        cfg,
		graphURL:   strings.TrimRight(graphURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "whatsapp"),
	}
}

// SendText delivers a plain text message to a recipient.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return c.postJSON(ctx, fmt.Sprintf("/%s/messages", c.cfg.PhoneNumberID), payload)
}

// SendMedia uploads media bytes and sends them to a recipient. kind is
// "audio" or "image". On any failure it degrades to sending fallbackText.
func (c *Client) SendMedia(ctx context.Context, to, kind string, media []byte, fallbackText string) error {
	mediaID, err := c.uploadMedia(ctx, kind, media)
	if err != nil {
		c.logger.Warn("media upload failed, sending text instead", "error", err)
		return c.SendText(ctx, to, fallbackText)
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              kind,
		kind:                map[string]string{"id": mediaID},
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/%s/messages", c.cfg.PhoneNumberID), payload); err != nil {
		c.logger.Warn("media send failed, sending text instead", "error", err)
		return c.SendText(ctx, to, fallbackText)
	}
	return nil
}

// uploadMedia pushes bytes to the media endpoint and returns the media id.
func (c *Client) uploadMedia(ctx context.Context, kind string, media []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	mimeType := sniffMIME(media)
	part, err := writer.CreateFormFile("file", fileNameFor(kind, mimeType))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(media); err != nil {
		return "", fmt.Errorf("writing media: %w", err)
	}
	_ = writer.WriteField("messaging_product", "whatsapp")
	_ = writer.WriteField("type", mimeType)
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s/media", c.graphURL, c.cfg.PhoneNumberID), &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("upload failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("upload returned no media id")
	}
	return parsed.ID, nil
}

// DownloadMedia resolves a media id to its content URL and fetches the bytes.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", c.graphURL, mediaID), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media lookup failed (HTTP %d)", resp.StatusCode)
	}

	var meta struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding media metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("media %s has no download URL", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download failed (HTTP %d)", dlResp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(dlResp.Body, 32<<20))
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// sniffMIME guesses the media MIME type from magic bytes. Audio frames
// (MPEG sync, ID3, RIFF/WAVE, OGG) are recognized explicitly; everything
// else falls through to http.DetectContentType.
func sniffMIME(data []byte) string {
	if len(data) >= 4 {
		switch {
		case data[0] == 0xFF && data[1]&0xF0 == 0xF0:
			return "audio/mpeg"
		case bytes.HasPrefix(data, []byte("ID3")):
			return "audio/mpeg"
		case bytes.HasPrefix(data, []byte("OggS")):
			return "audio/ogg"
		case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WAVE")):
			return "audio/wav"
		}
	}
	return http.DetectContentType(data)
}

func fileNameFor(kind, mimeType string) string {
	switch {
	case kind == "audio" && mimeType == "audio/ogg":
		return "reply.ogg"
	case kind == "audio":
		return "reply.mp3"
	case strings.HasSuffix(mimeType, "png"):
		return "reply.png"
	default:
		return "reply.jpg"
	}
}
