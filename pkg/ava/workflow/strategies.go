package workflow

import (
	"context"
	"fmt"
	"strings"
)

// fallbackText is used when even the fallback completion call fails.
const fallbackText = "Sorry, I had trouble answering that. Could you please rephrase?"

const contextAnswerPrompt = `Use the conversation context below to answer the user's latest message.

Context:
%s

Latest message: %s`

const recallAnswerPrompt = `You remember the following from a past conversation: %q

Use that memory to answer the user's message: %s`

const noMemoryPrompt = `You have no stored memory relevant to this message. Answer it as best you can, and if it asks about something you were supposed to remember, say plainly that you don't have that memory.

Message: %s`

// dispatch executes exactly one strategy branch for the routing decision.
// Unknown decisions were already folded into DIRECT by ParseDecision.
func (e *Engine) dispatch(ctx context.Context, t *Turn) nodeID {
	switch t.Decision {
	case DecisionUseShortTerm:
		e.answerWithShortTerm(ctx, t)
	case DecisionUseLongTerm:
		e.answerWithLongTerm(ctx, t)
	case DecisionSummarizeToday:
		e.summarizeToday(ctx, t)
	case DecisionNews:
		e.fetchNews(ctx, t)
	case DecisionSendEmail:
		e.sendEmail(ctx, t)
	case DecisionNone:
		e.answerWithoutMemory(ctx, t)
	default:
		e.answerDirect(ctx, t)
	}
	return nodeGate
}

// answerDirect asks the completion capability with no extra context.
func (e *Engine) answerDirect(ctx context.Context, t *Turn) {
	reply := e.opts.LLM.Ask(ctx, t.lastUserText())
	if isErrorReply(reply) {
		e.logger.Warn("direct completion failed", "reply", reply)
		return
	}
	t.ReplyText = reply
	t.StrategyUsed = StrategyDirect
}

// answerWithShortTerm answers from recent history. Empty history falls
// through to DIRECT without touching long-term recall; irrelevant history
// escalates to long-term, with DIRECT as the final fallback.
func (e *Engine) answerWithShortTerm(ctx context.Context, t *Turn) {
	if e.opts.ShortTerm == nil {
		e.answerDirect(ctx, t)
		return
	}

	history, err := e.opts.ShortTerm.History(ctx, t.ConversationID)
	if err != nil {
		e.logger.Warn("short-term read failed", "error", err)
		history = nil
	}
	if len(history) == 0 {
		e.answerDirect(ctx, t)
		return
	}

	question := t.lastUserText()
	memoryContext := formatHistory(history)
	if !e.opts.Classifier.Relevant(ctx, memoryContext, question) {
		if e.opts.LongTerm != nil {
			e.answerWithLongTerm(ctx, t)
		} else {
			e.answerDirect(ctx, t)
		}
		return
	}

	reply := e.opts.LLM.Ask(ctx, fmt.Sprintf(contextAnswerPrompt, memoryContext, question))
	if isErrorReply(reply) {
		e.logger.Warn("short-term completion failed", "reply", reply)
		return
	}
	t.ReplyText = reply
	t.StrategyUsed = StrategyShortTerm
}

// answerWithLongTerm answers from semantic recall, or with an explicit
// no-memory framing when nothing relevant is stored.
func (e *Engine) answerWithLongTerm(ctx context.Context, t *Turn) {
	question := t.lastUserText()

	if e.opts.LongTerm == nil {
		e.answerWithoutMemory(ctx, t)
		return
	}

	recall, err := e.opts.LongTerm.Query(ctx, question)
	if err != nil {
		e.logger.Warn("long-term query failed", "error", err)
		recall = ""
	}
	if recall == "" || !e.opts.Classifier.Relevant(ctx, recall, question) {
		e.answerWithoutMemory(ctx, t)
		return
	}

	reply := e.opts.LLM.Ask(ctx, fmt.Sprintf(recallAnswerPrompt, recall, question))
	if isErrorReply(reply) {
		e.logger.Warn("long-term completion failed", "reply", reply)
		return
	}
	t.ReplyText = reply
	t.StrategyUsed = StrategyLongTerm
}

// answerWithoutMemory answers fresh while telling the model no relevant
// memory exists.
func (e *Engine) answerWithoutMemory(ctx context.Context, t *Turn) {
	reply := e.opts.LLM.Ask(ctx, fmt.Sprintf(noMemoryPrompt, t.lastUserText()))
	if isErrorReply(reply) {
		e.logger.Warn("no-memory completion failed", "reply", reply)
		return
	}
	t.ReplyText = reply
	t.StrategyUsed = StrategyNone
}

// runFallback is the last chance to produce a reply when no strategy did:
// one plain re-ask of the raw message, then a canned apology.
func (e *Engine) runFallback(ctx context.Context, t *Turn) {
	t.StrategyUsed = StrategyFallback
	reply := e.opts.LLM.Ask(ctx, t.lastUserText())
	if isErrorReply(reply) || strings.TrimSpace(reply) == "" {
		t.ReplyText = fallbackText
		return
	}
	t.ReplyText = reply
}

// formatHistory renders stored exchanges for a completion prompt.
func formatHistory(history []Message) string {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Speaker, m.Text)
	}
	return b.String()
}
