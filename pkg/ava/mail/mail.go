// Package mail implements outbound email: strict parsing of a model-produced
// send request and delivery through the Gmail REST API.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
)

// SendRequest is the structured form of an email the assistant was asked to
// send. To and Body are required; an empty Subject is defaulted.
type SendRequest struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// ParseError reports why a model-produced send request could not be used. The
// caller surfaces Reason to the user so they can rephrase.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "invalid email request: " + e.Reason
}

// ParseSendRequestJSON decodes the JSON a model extracted from the user
// message and validates it. Unknown fields and malformed addresses are
// rejected rather than silently sent.
func ParseSendRequestJSON(raw string) (SendRequest, error) {
	raw = stripCodeFence(raw)

	var req SendRequest
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return SendRequest{}, &ParseError{Reason: "could not decode request: " + err.Error()}
	}

	if len(req.To) == 0 {
		return SendRequest{}, &ParseError{Reason: "no recipient given"}
	}
	for _, lists := range [][]string{req.To, req.Cc, req.Bcc} {
		for _, addr := range lists {
			if _, err := mail.ParseAddress(addr); err != nil {
				return SendRequest{}, &ParseError{Reason: fmt.Sprintf("invalid address %q", addr)}
			}
		}
	}
	if strings.TrimSpace(req.Subject) == "" {
		req.Subject = "(no subject)"
	}
	if strings.TrimSpace(req.Body) == "" {
		return SendRequest{}, &ParseError{Reason: "no body given"}
	}

	return req, nil
}

// stripCodeFence removes a markdown ```json fence if the model wrapped its
// output in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Config configures the Gmail sender.
type Config struct {
	// AccessToken is an OAuth2 bearer token with gmail.send scope.
	AccessToken string `yaml:"access_token"`

	// From is the sender address shown on outgoing mail.
	From string `yaml:"from"`

	// BaseURL overrides the Gmail API root (tests).
	BaseURL string `yaml:"base_url"`
}

// GmailSender delivers messages through the Gmail users.messages.send endpoint.
type GmailSender struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGmailSender creates a sender from config.
func NewGmailSender(cfg Config, logger *slog.Logger) *GmailSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://gmail.googleapis.com/gmail/v1"
	}
	return &GmailSender{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.With("component", "mail"),
	}
}

// Send builds an RFC 2822 message from the request and submits it.
func (s *GmailSender) Send(ctx context.Context, req SendRequest) error {
	if s.cfg.AccessToken == "" {
		return fmt.Errorf("gmail access token not configured")
	}

	rfc822 := buildMessage(s.cfg.From, req)
	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(rfc822),
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gmail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gmail API error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.Info("email sent", "to", strings.Join(req.To, ","), "subject", req.Subject)
	return nil
}

func buildMessage(from string, req SendRequest) []byte {
	var b bytes.Buffer
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(req.To, ", "))
	if len(req.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(req.Cc, ", "))
	}
	if len(req.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\r\n", strings.Join(req.Bcc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", req.Subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(req.Body)
	return b.Bytes()
}
