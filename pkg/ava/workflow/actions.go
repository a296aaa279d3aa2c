// Package workflow – actions.go implements the side-effecting branches:
// daily summary, news search and email send. Each branch calls its external
// capability once and turns any failure into a user-safe explanation, so it
// always reaches the response gate with text in hand.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/avachat/ava/pkg/ava/digest"
	"github.com/avachat/ava/pkg/ava/mail"
	"github.com/avachat/ava/pkg/ava/news"
)

const summarizePrompt = `Summarize the daily digest below as plain bullet points. Group by category (emails, calendar, tasks) and put the most urgent items first. No headers, no markdown beyond the bullets.

%s`

const newsExtractPrompt = `Extract news search parameters from the user's message. Respond with a single JSON object and nothing else, shaped exactly like:
{"country": "two-letter code or empty", "category": "one of business, entertainment, general, health, science, sports, technology, or empty", "keywords": ["up to three words"]}

Message: %s`

const newsSummaryPrompt = `Summarize these headlines in 2 to 4 terse bullet points:

%s`

const emailExtractPrompt = `Extract an email send request from the user's message. Respond with a single JSON object and nothing else, shaped exactly like:
{"to": ["address"], "cc": [], "bcc": [], "subject": "...", "body": "..."}

Write a short, polite body if the user only gave the gist. Message: %s`

// summarizeToday loads the current day's digest snapshot and summarizes it.
// A missing snapshot is an expected state and gets a plain explanation.
func (e *Engine) summarizeToday(ctx context.Context, t *Turn) {
	today := e.now()

	if e.opts.Digest == nil {
		t.ReplyText = "Daily summaries aren't set up yet."
		t.StrategyUsed = StrategyNone
		return
	}

	summary, err := e.opts.Digest.Load(today)
	if err != nil {
		var notFound *digest.NotFoundError
		if errors.As(err, &notFound) {
			t.ReplyText = fmt.Sprintf("I don't have a summary for %s yet. Nothing was collected at %s.",
				today.Format("2006-01-02"), notFound.Path)
		} else {
			e.logger.Warn("digest load failed", "error", err)
			t.ReplyText = "I couldn't read today's summary data. Please try again later."
		}
		t.StrategyUsed = StrategyNone
		return
	}

	if summary.IsEmpty() {
		t.ReplyText = fmt.Sprintf("Nothing to report for %s: no new emails, events or tasks.",
			today.Format("2006-01-02"))
		t.StrategyUsed = StrategySummary
		return
	}

	reply := e.opts.LLM.Ask(ctx, fmt.Sprintf(summarizePrompt, summary.Render()))
	if isErrorReply(reply) {
		// Raw render is still useful when the model is down.
		reply = "Here's today's raw digest:\n" + summary.Render()
	}
	t.ReplyText = reply
	t.StrategyUsed = StrategySummary
}

// fetchNews extracts search parameters, queries headlines, and summarizes the
// top results. Parameter extraction failures fall back to keyword heuristics.
func (e *Engine) fetchNews(ctx context.Context, t *Turn) {
	if e.opts.News == nil {
		t.ReplyText = "News search isn't set up yet."
		t.StrategyUsed = StrategyNone
		return
	}

	message := t.lastUserText()
	query, err := e.extractNewsQuery(ctx, message)
	if err != nil {
		e.logger.Debug("news extraction failed, using heuristics", "error", err)
		query = news.HeuristicQuery(message)
	}

	articles, err := e.opts.News.TopHeadlines(ctx, query)
	if err != nil {
		e.logger.Warn("news search failed", "error", err)
		t.ReplyText = "I couldn't reach the news service right now. Please try again later."
		t.StrategyUsed = StrategyNews
		return
	}
	if len(articles) == 0 {
		t.ReplyText = "I didn't find any headlines matching that."
		t.StrategyUsed = StrategyNews
		return
	}

	if len(articles) > 5 {
		articles = articles[:5]
	}
	var b strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&b, "- %s (%s)", a.Title, a.Source)
		if a.Description != "" {
			fmt.Fprintf(&b, ": %s", a.Description)
		}
		b.WriteString("\n")
	}

	reply := e.opts.LLM.Ask(ctx, fmt.Sprintf(newsSummaryPrompt, b.String()))
	if isErrorReply(reply) {
		reply = b.String()
	}
	t.ReplyText = reply
	t.StrategyUsed = StrategyNews
}

// extractNewsQuery asks the model for structured parameters and decodes them
// strictly.
func (e *Engine) extractNewsQuery(ctx context.Context, message string) (news.Query, error) {
	raw := e.opts.LLM.Ask(ctx, fmt.Sprintf(newsExtractPrompt, message))
	if isErrorReply(raw) {
		return news.Query{}, fmt.Errorf("extraction call failed: %s", raw)
	}

	var q news.Query
	dec := json.NewDecoder(strings.NewReader(stripCodeFence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		return news.Query{}, fmt.Errorf("decoding parameters: %w", err)
	}
	return q, nil
}

// sendEmail parses the user's request into a structured send request and
// delivers it. A request without a recipient asks the user for one instead of
// calling the email capability.
func (e *Engine) sendEmail(ctx context.Context, t *Turn) {
	t.StrategyUsed = StrategyEmail

	if e.opts.Email == nil {
		t.ReplyText = "Sending email isn't set up yet."
		t.StrategyUsed = StrategyNone
		return
	}

	raw := e.opts.LLM.Ask(ctx, fmt.Sprintf(emailExtractPrompt, t.lastUserText()))
	if isErrorReply(raw) {
		t.ReplyText = "I couldn't work out the email details. Could you restate who it's for and what it should say?"
		return
	}

	req, err := mail.ParseSendRequestJSON(raw)
	if err != nil {
		var parseErr *mail.ParseError
		switch {
		case errors.As(err, &parseErr) && parseErr.Reason == "no recipient given":
			t.ReplyText = "Who should I send that email to? I need at least one recipient address."
		case errors.As(err, &parseErr) && parseErr.Reason == "no body given":
			t.ReplyText = "What should the email say? I have the recipient but no message text."
		default:
			t.ReplyText = "I couldn't work out the email details. Could you restate who it's for and what it should say?"
		}
		return
	}

	if err := e.opts.Email.Send(ctx, req); err != nil {
		e.logger.Warn("email send failed", "error", err)
		t.ReplyText = fmt.Sprintf("I couldn't send the email: %v", err)
		return
	}

	t.ReplyText = fmt.Sprintf("Done. I sent %q to %s.", req.Subject, strings.Join(req.To, ", "))
}

// stripCodeFence removes a markdown fence around model JSON output.
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
