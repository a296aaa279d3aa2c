// Package workflow – state.go defines the per-turn state threaded through
// the routing graph: media types, the closed routing decision enum and the
// strategy audit labels.
package workflow

import "strings"

// MediaType identifies the form of an input or output payload.
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaAudio MediaType = "audio"
	MediaImage MediaType = "image"
)

// ParseMediaType normalizes a declared media type, defaulting to text.
func ParseMediaType(raw string) MediaType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "audio", "voice", "ptt":
		return MediaAudio
	case "image", "photo":
		return MediaImage
	default:
		return MediaText
	}
}

// Decision is the routing label chosen by the classifier for a turn.
type Decision string

const (
	DecisionDirect         Decision = "DIRECT"
	DecisionUseShortTerm   Decision = "USE_SHORT_TERM"
	DecisionUseLongTerm    Decision = "USE_LONG_TERM"
	DecisionSummarizeToday Decision = "SUMMARIZE_TODAY"
	DecisionNews           Decision = "NEWS"
	DecisionSendEmail      Decision = "SEND_EMAIL"
	DecisionNone           Decision = "NONE"
)

// ParseDecision maps raw classifier output to a known decision. Anything the
// vocabulary does not cover becomes DIRECT so a misbehaving model can never
// stall a turn.
func ParseDecision(raw string) Decision {
	switch Decision(strings.ToUpper(firstToken(raw))) {
	case DecisionDirect:
		return DecisionDirect
	case DecisionUseShortTerm:
		return DecisionUseShortTerm
	case DecisionUseLongTerm:
		return DecisionUseLongTerm
	case DecisionSummarizeToday:
		return DecisionSummarizeToday
	case DecisionNews:
		return DecisionNews
	case DecisionSendEmail:
		return DecisionSendEmail
	case DecisionNone:
		return DecisionNone
	default:
		return DecisionDirect
	}
}

// Strategy records which branch actually produced the reply. It can differ
// from the routing decision when a branch escalates or falls back.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyShortTerm Strategy = "short_term"
	StrategyLongTerm  Strategy = "long_term"
	StrategySummary   Strategy = "summary"
	StrategyNews      Strategy = "news"
	StrategyEmail     Strategy = "email"
	StrategyNone      Strategy = "none"
	StrategyFallback  Strategy = "fallback"
)

// Speaker labels for the turn message log.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Message is one entry in the turn's message log.
type Message struct {
	Speaker string
	Text    string
}

// Turn is the mutable state of one conversational turn. It is owned by the
// engine for the length of Run and discarded afterwards.
type Turn struct {
	ConversationID string
	InputMedia     MediaType

	// RawText and RawBytes hold the unprocessed payload; exactly one is
	// consumed by the normalization stage depending on InputMedia.
	RawText  string
	RawBytes []byte
	Caption  string

	Messages     []Message
	Decision     Decision
	StrategyUsed Strategy

	ReplyText  string
	ReplyMedia MediaType
	ReplyBytes []byte
}

func (t *Turn) appendMessage(speaker, text string) {
	t.Messages = append(t.Messages, Message{Speaker: speaker, Text: text})
}

// lastUserText returns the most recent user message in the turn's log.
func (t *Turn) lastUserText() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Speaker == SpeakerUser {
			return t.Messages[i].Text
		}
	}
	return ""
}
