package workflow

import (
	"context"
	"fmt"
	"strings"
)

const (
	audioFailText = "Sorry, I couldn't understand the audio. Could you please try again?"
	imageFailText = "Sorry, I couldn't read that image. Could you please try again?"
)

// normalizeInput converts the raw payload into the turn's first user message.
// On capability failure it installs an apologetic reply plus a placeholder
// user message and jumps straight to the response gate, so the rest of the
// graph still runs.
func (e *Engine) normalizeInput(ctx context.Context, t *Turn) nodeID {
	switch t.InputMedia {
	case MediaAudio:
		if e.opts.Transcriber == nil {
			return e.normalizeFailed(t, audioFailText, "[unintelligible audio]")
		}
		text, err := e.opts.Transcriber.Transcribe(ctx, t.RawBytes)
		if err != nil {
			e.logger.Warn("transcription failed", "error", err)
			return e.normalizeFailed(t, audioFailText, "[unintelligible audio]")
		}
		t.appendMessage(SpeakerUser, text)

	case MediaImage:
		if e.opts.Describer == nil {
			return e.normalizeFailed(t, imageFailText, "[unreadable image]")
		}
		description, err := e.opts.Describer.Describe(ctx, t.RawBytes, t.Caption)
		if err != nil {
			e.logger.Warn("image description failed", "error", err)
			return e.normalizeFailed(t, imageFailText, "[unreadable image]")
		}
		text := description
		if strings.TrimSpace(t.Caption) != "" {
			text = fmt.Sprintf("%s\n[Image: %s]", t.Caption, description)
		}
		t.appendMessage(SpeakerUser, text)

	default:
		t.appendMessage(SpeakerUser, t.RawText)
	}

	return nodeClassifyRoute
}

func (e *Engine) normalizeFailed(t *Turn, reply, placeholder string) nodeID {
	t.ReplyText = reply
	t.Decision = DecisionNone
	t.StrategyUsed = StrategyNone
	t.appendMessage(SpeakerUser, placeholder)
	return nodeGate
}
