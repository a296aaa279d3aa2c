package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avachat/ava/pkg/ava/capability"
	"github.com/avachat/ava/pkg/ava/channels/whatsapp"
	"github.com/avachat/ava/pkg/ava/digest"
	"github.com/avachat/ava/pkg/ava/mail"
	"github.com/avachat/ava/pkg/ava/memory"
	"github.com/avachat/ava/pkg/ava/news"
	"github.com/avachat/ava/pkg/ava/tts"
	"github.com/avachat/ava/pkg/ava/workflow"
)

// Assistant owns the workflow engine and every collaborator built from
// config. Optional subsystems (news, mail, image generation, WhatsApp) stay
// nil when unconfigured and the engine degrades those branches to text.
type Assistant struct {
	cfg    *Config
	logger *slog.Logger

	engine    *workflow.Engine
	shortTerm *memory.ShortTermStore
	longTerm  *memory.LongTermStore

	whatsappClient *whatsapp.Client
	webhook        *whatsapp.Handler
	scheduler      *digest.Scheduler
}

// New builds the assistant from a resolved config.
func New(cfg *Config, logger *slog.Logger) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Assistant{cfg: cfg, logger: logger}

	llm := capability.NewLLMClient(cfg.API, logger)

	shortTerm, err := memory.NewShortTermStore(cfg.Memory.Path, cfg.Memory.MaxRows, logger)
	if err != nil {
		return nil, fmt.Errorf("opening short-term store: %w", err)
	}
	a.shortTerm = shortTerm

	embedder := memory.NewEmbeddingProvider(cfg.Memory.Embeddings, logger)
	longTerm, err := memory.NewLongTermStore(cfg.Memory.Path, embedder, logger)
	if err != nil {
		shortTerm.Close()
		return nil, fmt.Errorf("opening long-term store: %w", err)
	}
	a.longTerm = longTerm

	opts := workflow.Options{
		LLM:         llm,
		Classifier:  workflow.NewClassifier(llm, logger),
		Transcriber: capability.NewSpeechToText(cfg.API, logger),
		Describer:   capability.NewImageToText(cfg.API, logger),
		ShortTerm:   &shortTermAdapter{store: shortTerm},
		LongTerm:    longTerm,
		Digest:      digest.NewLoader(cfg.Digest.Collector.DataDir),
		Logger:      logger,
	}

	if cfg.ImageGen.APIKey != "" {
		opts.Renderer = capability.NewImageGenerator(cfg.ImageGen, logger)
	}
	if speech := buildSpeech(cfg.TTS, logger); speech != nil {
		opts.Speech = speech
	}
	if cfg.News.APIKey != "" {
		opts.News = news.NewClient(cfg.News, logger)
	}
	if cfg.Mail.AccessToken != "" {
		opts.Email = mail.NewGmailSender(cfg.Mail, logger)
	}

	a.engine = workflow.NewEngine(opts)

	if cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.PhoneNumberID != "" {
		a.whatsappClient = whatsapp.NewClient(cfg.WhatsApp.Config, logger)
		a.webhook = whatsapp.NewHandler(cfg.WhatsApp.Config, a.whatsappClient, a.engine, cfg.WhatsApp.SelfNumber, logger)
	}

	if cfg.Digest.Collector.BaseURL != "" {
		collector := digest.NewCollector(cfg.Digest.Collector, logger)
		a.scheduler = digest.NewScheduler(collector, cfg.Digest.Schedule, logger)
		a.scheduler.OnComplete = a.pushDailySummary
	}

	return a, nil
}

// RunTurn executes one conversational turn. Used by the CLI REPL and tests;
// the webhook path goes through the engine directly.
func (a *Assistant) RunTurn(ctx context.Context, in workflow.Input) workflow.Reply {
	return a.engine.Run(ctx, in)
}

// Serve runs the webhook HTTP server until the context is canceled. The
// digest scheduler starts alongside it when configured.
func (a *Assistant) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if a.webhook != nil {
		mux.Handle("/webhook", a.webhook)
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("starting digest scheduler: %w", err)
		}
		defer a.scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	a.logger.Info("assistant serving", "addr", a.cfg.Server.Addr, "whatsapp", a.webhook != nil)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the memory stores.
func (a *Assistant) Close() {
	if a.shortTerm != nil {
		_ = a.shortTerm.Close()
	}
	if a.longTerm != nil {
		_ = a.longTerm.Close()
	}
}

// pushDailySummary runs a summarize-today turn and delivers the reply to the
// configured recipient after each morning collection.
func (a *Assistant) pushDailySummary(ctx context.Context, _ *digest.Summary) {
	recipient := a.cfg.Digest.Recipient
	if recipient == "" || a.whatsappClient == nil {
		return
	}

	reply := a.engine.Run(ctx, workflow.Input{
		ConversationID: recipient,
		Media:          workflow.MediaText,
		Text:           "Send me today's summary",
	})
	if err := a.whatsappClient.SendText(ctx, recipient, reply.Text); err != nil {
		a.logger.Warn("daily summary delivery failed", "error", err)
	}
}

// buildSpeech assembles the synthesis provider chain from config. ElevenLabs
// gets the free online voice as automatic fallback; without an API key the
// free voice is used directly. Returns nil only for an explicit "off".
func buildSpeech(cfg TTSConfig, logger *slog.Logger) workflow.SpeechSynthesizer {
	if cfg.Provider == "off" {
		return nil
	}

	edge := tts.NewEdgeProvider(logger)
	if cfg.Provider == "elevenlabs" && cfg.APIKey != "" {
		eleven := tts.NewElevenLabsProvider(cfg.APIKey, "")
		chain := tts.NewFallbackProvider(eleven, edge, cfg.Voice, cfg.FallbackVoice, logger)
		return &speechAdapter{provider: chain}
	}

	voice := cfg.FallbackVoice
	if voice == "" {
		voice = cfg.Voice
	}
	return &speechAdapter{provider: edge, voice: voice}
}

// speechAdapter narrows a tts.Provider to the engine's synthesis interface.
type speechAdapter struct {
	provider tts.Provider
	voice    string
}

func (s *speechAdapter) Speak(ctx context.Context, text string) ([]byte, error) {
	audio, _, err := s.provider.Synthesize(ctx, text, s.voice)
	return audio, err
}

// shortTermAdapter converts between the store's message type and the
// engine's.
type shortTermAdapter struct {
	store *memory.ShortTermStore
}

func (s *shortTermAdapter) History(ctx context.Context, conversationID string) ([]workflow.Message, error) {
	rows, err := s.store.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs := make([]workflow.Message, 0, len(rows))
	for _, m := range rows {
		msgs = append(msgs, workflow.Message{Speaker: m.Speaker, Text: m.Text})
	}
	return msgs, nil
}

func (s *shortTermAdapter) Append(ctx context.Context, conversationID, speaker, text string) error {
	return s.store.Append(ctx, conversationID, speaker, text)
}
