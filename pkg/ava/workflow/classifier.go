package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// TextCompleter is the text-completion capability the workflow depends on.
// Both surfaces encode failure as a reply starting with "Error:" instead of
// returning an error, so every call site stays on the happy path and applies
// its own safe default.
type TextCompleter interface {
	// Ask answers a free-form prompt.
	Ask(ctx context.Context, prompt string) string

	// AskRouter answers a constrained classification prompt at zero
	// temperature.
	AskRouter(ctx context.Context, prompt string) string
}

const routingPrompt = `You are a routing agent for a personal assistant. Read the user's message and answer with exactly one of these keywords and nothing else:

DIRECT - the message can be answered on its own, no earlier context needed
USE_SHORT_TERM - the message refers to something said earlier in this conversation
USE_LONG_TERM - the message refers to something from a past conversation or asks what you remember
SUMMARIZE_TODAY - the user asks for today's summary, agenda, emails or schedule
NEWS - the user asks for news or current headlines
SEND_EMAIL - the user asks you to send, write or compose an email
NONE - the message asks about a memory you clearly do not have

Examples:
"What is the capital of France?" -> DIRECT
"What did I just tell you?" -> USE_SHORT_TERM
"Do you remember where I live?" -> USE_LONG_TERM
"What's on my plate today?" -> SUMMARIZE_TODAY
"Any tech news?" -> NEWS
"Email Sam that the meeting moved" -> SEND_EMAIL

User message: %s

Answer:`

const relevancePrompt = `Decide whether the context below is relevant for answering the question. Answer with exactly YES or NO and nothing else.

Context:
%s

Question: %s

Answer:`

const imageCheckPrompt = `Does the reply below describe a picture, image, drawing, photo or any other visual that should be generated and sent instead of plain text? Answer with exactly YES or NO and nothing else.

Reply: %s

Answer:`

// Classifier issues the constrained-vocabulary decisions of the workflow:
// routing labels, relevance checks and the output-media check. All parsing is
// defensive: only the first whitespace-delimited token of the completion is
// considered, and the "Error:" sentinel always yields the safe default.
type Classifier struct {
	llm    TextCompleter
	logger *slog.Logger
}

// NewClassifier creates a classifier over the completion capability.
func NewClassifier(llm TextCompleter, logger *slog.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger.With("component", "classifier")}
}

// Route picks the strategy for a user message. Sentinel failures and
// off-vocabulary answers both resolve to DIRECT.
func (c *Classifier) Route(ctx context.Context, message string) Decision {
	reply := c.llm.AskRouter(ctx, fmt.Sprintf(routingPrompt, message))
	if isErrorReply(reply) {
		c.logger.Warn("routing call failed, defaulting to DIRECT", "reply", reply)
		return DecisionDirect
	}
	decision := ParseDecision(reply)
	c.logger.Debug("route classified", "decision", decision)
	return decision
}

// Relevant reports whether retrieved memory answers the question. Any
// failure or ambiguous answer counts as NO.
func (c *Classifier) Relevant(ctx context.Context, memoryContext, question string) bool {
	reply := c.llm.AskRouter(ctx, fmt.Sprintf(relevancePrompt, memoryContext, question))
	if isErrorReply(reply) {
		return false
	}
	return strings.EqualFold(firstToken(reply), "YES")
}

// WantsImage reports whether the reply text calls for a generated image.
// Defaults to NO on failure.
func (c *Classifier) WantsImage(ctx context.Context, replyText string) bool {
	reply := c.llm.AskRouter(ctx, fmt.Sprintf(imageCheckPrompt, replyText))
	if isErrorReply(reply) {
		return false
	}
	return strings.EqualFold(firstToken(reply), "YES")
}

// firstToken extracts the first whitespace-delimited token of a completion.
func firstToken(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,:;!\"'")
}

// isErrorReply detects the completion capability's failure sentinel.
func isErrorReply(reply string) bool {
	return len(reply) >= 6 && strings.EqualFold(reply[:6], "error:")
}
