// Package workflow – engine.go runs the routing graph: a fixed set of stages
// connected by conditional edges, executed one turn at a time. Every stage
// absorbs its own failures, so Run always produces a reply payload.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/avachat/ava/pkg/ava/digest"
	"github.com/avachat/ava/pkg/ava/mail"
	"github.com/avachat/ava/pkg/ava/news"
)

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ImageDescriber converts image bytes to a textual description.
type ImageDescriber interface {
	Describe(ctx context.Context, image []byte, prompt string) (string, error)
}

// ImageRenderer generates an image from a text prompt.
type ImageRenderer interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// SpeechSynthesizer converts reply text to audio bytes.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// ShortTermMemory is the bounded per-conversation exchange log.
type ShortTermMemory interface {
	History(ctx context.Context, conversationID string) ([]Message, error)
	Append(ctx context.Context, conversationID, speaker, text string) error
}

// LongTermMemory is the similarity-searchable recall store.
type LongTermMemory interface {
	Query(ctx context.Context, text string) (string, error)
	Add(ctx context.Context, conversationID, text string) error
}

// DigestLoader reads the daily snapshot artifact for a date.
type DigestLoader interface {
	Load(date time.Time) (*digest.Summary, error)
	Path(date time.Time) string
}

// NewsSearcher fetches current headlines.
type NewsSearcher interface {
	TopHeadlines(ctx context.Context, q news.Query) ([]news.Article, error)
}

// EmailSender delivers a parsed send request.
type EmailSender interface {
	Send(ctx context.Context, req mail.SendRequest) error
}

// Options wires the engine's collaborators. LLM and Classifier are required;
// every other field may be nil, in which case the corresponding branch
// degrades to a text explanation.
type Options struct {
	LLM        TextCompleter
	Classifier *Classifier

	Transcriber Transcriber
	Describer   ImageDescriber
	Renderer    ImageRenderer
	Speech      SpeechSynthesizer

	ShortTerm ShortTermMemory
	LongTerm  LongTermMemory

	Digest DigestLoader
	News   NewsSearcher
	Email  EmailSender

	Logger *slog.Logger
	Now    func() time.Time
}

// Input is one raw turn handed over by a transport.
type Input struct {
	ConversationID string
	Media          MediaType
	Text           string
	Bytes          []byte

	// Caption accompanies image input when the transport carries one.
	Caption string
}

// Reply is the final payload of a turn. Bytes is set only when Media is
// audio or image.
type Reply struct {
	Text     string
	Media    MediaType
	Bytes    []byte
	Strategy Strategy
}

// DefaultConversationID groups turns whose caller did not supply a key.
const DefaultConversationID = "default"

// Engine executes the routing graph.
type Engine struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an engine from options.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{opts: opts, logger: logger.With("component", "workflow"), now: now}
}

// nodeID names one stage of the graph.
type nodeID string

const (
	nodeNormalize     nodeID = "normalize_input"
	nodeClassifyRoute nodeID = "classify_route"
	nodeDispatch      nodeID = "dispatch"
	nodeGate          nodeID = "has_response"
	nodeFallback      nodeID = "fallback"
	nodeUpdateMemory  nodeID = "update_memory"
	nodeClassifyMedia nodeID = "classify_output_media"
	nodeRender        nodeID = "render_output"
	nodeTerminal      nodeID = "terminal"
)

// finalFallbackText is the reply of last resort when every stage failed to
// produce anything.
const finalFallbackText = "Sorry, something went wrong. Please try again."

// Run executes one turn end to end. It never returns an error: every failure
// along the way degrades to a textual reply.
func (e *Engine) Run(ctx context.Context, in Input) Reply {
	t := &Turn{
		ConversationID: in.ConversationID,
		InputMedia:     in.Media,
		RawText:        in.Text,
		RawBytes:       in.Bytes,
		Caption:        in.Caption,
		ReplyMedia:     MediaText,
	}
	if t.ConversationID == "" {
		t.ConversationID = DefaultConversationID
	}
	if t.InputMedia == "" {
		t.InputMedia = MediaText
	}

	node := nodeNormalize
	for node != nodeTerminal {
		e.logger.Debug("entering stage", "stage", node, "conversation", t.ConversationID)
		node = e.step(ctx, node, t)
	}

	if t.ReplyText == "" && len(t.ReplyBytes) == 0 {
		t.ReplyText = finalFallbackText
		t.ReplyMedia = MediaText
	}

	e.logger.Info("turn complete",
		"conversation", t.ConversationID,
		"decision", t.Decision,
		"strategy", t.StrategyUsed,
		"reply_media", t.ReplyMedia)

	return Reply{Text: t.ReplyText, Media: t.ReplyMedia, Bytes: t.ReplyBytes, Strategy: t.StrategyUsed}
}

// step runs one stage and returns the next node along a conditional edge.
func (e *Engine) step(ctx context.Context, node nodeID, t *Turn) nodeID {
	switch node {
	case nodeNormalize:
		return e.normalizeInput(ctx, t)
	case nodeClassifyRoute:
		t.Decision = e.opts.Classifier.Route(ctx, t.lastUserText())
		return nodeDispatch
	case nodeDispatch:
		return e.dispatch(ctx, t)
	case nodeGate:
		if t.ReplyText != "" {
			return nodeUpdateMemory
		}
		return nodeFallback
	case nodeFallback:
		e.runFallback(ctx, t)
		return nodeClassifyMedia
	case nodeUpdateMemory:
		e.updateMemory(ctx, t)
		return nodeClassifyMedia
	case nodeClassifyMedia:
		e.classifyOutputMedia(ctx, t)
		return nodeRender
	case nodeRender:
		e.renderOutput(ctx, t)
		return nodeTerminal
	default:
		return nodeTerminal
	}
}

// updateMemory persists the completed exchange: the user message plus reply
// into short-term history, and the user message into long-term recall. Both
// stores are best effort.
func (e *Engine) updateMemory(ctx context.Context, t *Turn) {
	userText := t.lastUserText()
	if userText == "" {
		return
	}
	t.appendMessage(SpeakerAssistant, t.ReplyText)

	if e.opts.ShortTerm != nil {
		if err := e.opts.ShortTerm.Append(ctx, t.ConversationID, SpeakerUser, userText); err != nil {
			e.logger.Warn("short-term append failed", "error", err)
		}
		if err := e.opts.ShortTerm.Append(ctx, t.ConversationID, SpeakerAssistant, t.ReplyText); err != nil {
			e.logger.Warn("short-term append failed", "error", err)
		}
	}
	if e.opts.LongTerm != nil {
		if err := e.opts.LongTerm.Add(ctx, t.ConversationID, userText); err != nil {
			e.logger.Warn("long-term add failed", "error", err)
		}
	}
}
