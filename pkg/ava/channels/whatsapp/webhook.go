package whatsapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/avachat/ava/pkg/ava/channels"
	"github.com/avachat/ava/pkg/ava/workflow"
)

// TurnRunner executes one conversational turn. Implemented by the workflow
// engine.
type TurnRunner interface {
	Run(ctx context.Context, in workflow.Input) workflow.Reply
}

// Sender is the outbound half of the channel, implemented by Client.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to, kind string, media []byte, fallbackText string) error
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// Handler receives Cloud API webhook calls, deduplicates them, and runs each
// inbound message through the workflow asynchronously.
type Handler struct {
	cfg        Config
	sender     Sender
	runner     TurnRunner
	dedup      *channels.Dedup
	logger     *slog.Logger
	selfNumber string

	// TurnTimeout bounds one workflow execution (default 2 minutes).
	TurnTimeout time.Duration
}

// NewHandler creates a webhook handler. selfNumber is the business number,
// used to drop echoes of the bot's own messages.
func NewHandler(cfg Config, sender Sender, runner TurnRunner, selfNumber string, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:         cfg,
		sender:      sender,
		runner:      runner,
		dedup:       channels.NewDedup(0),
		logger:      logger.With("component", "whatsapp_webhook"),
		selfNumber:  selfNumber,
		TurnTimeout: 2 * time.Minute,
	}
}

// ServeHTTP handles both halves of the webhook: GET verification and POST
// message delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// verify answers the Cloud API subscription handshake.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

// webhookPayload mirrors the subset of the Cloud API notification shape the
// handler cares about.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio *struct {
		ID string `json:"id"`
	} `json:"audio"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
}

// receive acknowledges the delivery immediately and processes messages in the
// background, since the Cloud API retries slow webhooks.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.From == "" || msg.From == h.selfNumber {
					continue
				}
				if h.dedup.Seen(msg.From, msg.ID) {
					h.logger.Debug("duplicate message dropped", "from", msg.From, "id", msg.ID)
					continue
				}
				go h.process(msg)
			}
		}
	}
}

// process resolves the message into workflow input, runs the turn, and sends
// the reply back on the same channel.
func (h *Handler) process(msg inboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), h.TurnTimeout)
	defer cancel()

	in := workflow.Input{ConversationID: msg.From, Media: workflow.MediaText}

	switch {
	case msg.Type == "audio" && msg.Audio != nil:
		data, err := h.sender.DownloadMedia(ctx, msg.Audio.ID)
		if err != nil {
			h.logger.Warn("audio download failed", "error", err)
			_ = h.sender.SendText(ctx, msg.From, "Sorry, I couldn't fetch that audio message.")
			return
		}
		in.Media = workflow.MediaAudio
		in.Bytes = data

	case msg.Type == "image" && msg.Image != nil:
		data, err := h.sender.DownloadMedia(ctx, msg.Image.ID)
		if err != nil {
			h.logger.Warn("image download failed", "error", err)
			_ = h.sender.SendText(ctx, msg.From, "Sorry, I couldn't fetch that image.")
			return
		}
		in.Media = workflow.MediaImage
		in.Bytes = data
		in.Caption = msg.Image.Caption

	case msg.Text != nil:
		in.Text = msg.Text.Body

	default:
		_ = h.sender.SendText(ctx, msg.From, "I can handle text, voice notes and images for now.")
		return
	}

	reply := h.runner.Run(ctx, in)

	switch reply.Media {
	case workflow.MediaAudio:
		_ = h.sender.SendMedia(ctx, msg.From, "audio", reply.Bytes, reply.Text)
	case workflow.MediaImage:
		_ = h.sender.SendMedia(ctx, msg.From, "image", reply.Bytes, reply.Text)
	default:
		_ = h.sender.SendText(ctx, msg.From, reply.Text)
	}
}
