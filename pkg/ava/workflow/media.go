package workflow

import "context"

// classifyOutputMedia decides how the reply is delivered: a generated image
// when the reply text calls for a visual, otherwise audio when the input
// arrived as audio, otherwise text.
func (e *Engine) classifyOutputMedia(ctx context.Context, t *Turn) {
	t.ReplyMedia = MediaText
	if t.ReplyText == "" {
		return
	}

	if e.opts.Renderer != nil && e.opts.Classifier.WantsImage(ctx, t.ReplyText) {
		t.ReplyMedia = MediaImage
		return
	}
	if t.InputMedia == MediaAudio && e.opts.Speech != nil {
		t.ReplyMedia = MediaAudio
	}
}

// renderOutput converts the reply into its final media form. Conversion
// failure degrades to text and keeps ReplyText intact.
func (e *Engine) renderOutput(ctx context.Context, t *Turn) {
	switch t.ReplyMedia {
	case MediaImage:
		img, err := e.opts.Renderer.Generate(ctx, t.ReplyText)
		if err != nil {
			e.logger.Warn("image generation failed, degrading to text", "error", err)
			t.ReplyMedia = MediaText
			return
		}
		t.ReplyBytes = img

	case MediaAudio:
		audio, err := e.opts.Speech.Speak(ctx, t.ReplyText)
		if err != nil {
			e.logger.Warn("speech synthesis failed, degrading to text", "error", err)
			t.ReplyMedia = MediaText
			return
		}
		t.ReplyBytes = audio
	}
}
