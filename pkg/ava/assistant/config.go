// Package assistant wires the assistant together: configuration, secret
// resolution and the construction of the workflow engine with all of its
// capability clients, stores and channels.
package assistant

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/avachat/ava/pkg/ava/capability"
	"github.com/avachat/ava/pkg/ava/channels/whatsapp"
	"github.com/avachat/ava/pkg/ava/digest"
	"github.com/avachat/ava/pkg/ava/mail"
	"github.com/avachat/ava/pkg/ava/memory"
	"github.com/avachat/ava/pkg/ava/news"
)

// Config is the full assistant configuration, loaded from YAML.
type Config struct {
	// Name is how the assistant refers to itself.
	Name string `yaml:"name"`

	API      capability.Config         `yaml:"api"`
	ImageGen capability.ImageGenConfig `yaml:"image_gen"`
	TTS      TTSConfig                 `yaml:"tts"`
	Memory   MemoryConfig              `yaml:"memory"`
	News     news.Config               `yaml:"news"`
	Mail     mail.Config               `yaml:"mail"`
	Digest   DigestConfig              `yaml:"digest"`
	WhatsApp WhatsAppConfig            `yaml:"whatsapp"`
	Server   ServerConfig              `yaml:"server"`
	Logging  LoggingConfig             `yaml:"logging"`
}

// TTSConfig selects and configures the speech synthesis provider.
type TTSConfig struct {
	// Provider is "elevenlabs" or "edge". ElevenLabs gets the free online
	// voice as automatic fallback.
	Provider string `yaml:"provider"`

	APIKey string `yaml:"api_key"`

	// Voice is the provider-specific voice id or name.
	Voice string `yaml:"voice"`

	// FallbackVoice is used by the fallback provider when the primary fails.
	FallbackVoice string `yaml:"fallback_voice"`
}

// MemoryConfig configures both memory stores.
type MemoryConfig struct {
	// Path is the SQLite database file holding both stores.
	Path string `yaml:"path"`

	// MaxRows caps short-term rows kept per conversation.
	MaxRows int `yaml:"max_rows"`

	Embeddings memory.EmbeddingConfig `yaml:"embeddings"`
}

// DigestConfig configures daily summary collection and delivery.
type DigestConfig struct {
	Collector digest.CollectorConfig `yaml:"collector"`

	// Schedule is a cron expression for the collection job.
	Schedule string `yaml:"schedule"`

	// Recipient, when set, receives the fresh summary over WhatsApp each
	// morning after collection.
	Recipient string `yaml:"recipient"`
}

// WhatsAppConfig extends the channel config with the bot's own number, used
// to drop echoes.
type WhatsAppConfig struct {
	whatsapp.Config `yaml:",inline"`

	SelfNumber string `yaml:"self_number"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `yaml:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults for a local setup.
func DefaultConfig() *Config {
	return &Config{
		Name: "Ava",
		API: capability.Config{
			BaseURL: capability.DefaultBaseURL,
			Model:   "llama-3.3-70b-versatile",
		},
		TTS: TTSConfig{Provider: "edge"},
		Memory: MemoryConfig{
			Path:       "ava.db",
			MaxRows:    memory.DefaultMaxRows,
			Embeddings: memory.DefaultEmbeddingConfig(),
		},
		Digest: DigestConfig{
			Collector: digest.CollectorConfig{DataDir: "data"},
			Schedule:  digest.DefaultSchedule,
		},
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks the parts of the config without safe defaults.
func (c *Config) Validate() error {
	if c.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required (set AVA_API_KEY or GROQ_API_KEY)")
	}
	if c.Memory.Path == "" {
		return fmt.Errorf("memory.path is required")
	}
	return nil
}

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
