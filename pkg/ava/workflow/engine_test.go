package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/avachat/ava/pkg/ava/digest"
	"github.com/avachat/ava/pkg/ava/mail"
	"github.com/avachat/ava/pkg/ava/news"
)

// stubLLM scripts answers per matched prompt substring and records every
// prompt it sees.
type stubLLM struct {
	answers     map[string]string // substring -> reply
	routerReply string
	routerFn    func() string
	defaultText string
	prompts     []string
	routerSeen  []string
}

func (s *stubLLM) Ask(_ context.Context, prompt string) string {
	s.prompts = append(s.prompts, prompt)
	for substr, reply := range s.answers {
		if strings.Contains(prompt, substr) {
			return reply
		}
	}
	if s.defaultText != "" {
		return s.defaultText
	}
	return "ok"
}

func (s *stubLLM) AskRouter(_ context.Context, prompt string) string {
	s.routerSeen = append(s.routerSeen, prompt)
	if s.routerFn != nil {
		return s.routerFn()
	}
	return s.routerReply
}

type stubShortTerm struct {
	history  []Message
	appended []Message
	readErr  error
}

func (s *stubShortTerm) History(_ context.Context, _ string) ([]Message, error) {
	return s.history, s.readErr
}

func (s *stubShortTerm) Append(_ context.Context, _, speaker, text string) error {
	s.appended = append(s.appended, Message{Speaker: speaker, Text: text})
	return nil
}

type stubLongTerm struct {
	recall  string
	queried bool
	added   []string
}

func (s *stubLongTerm) Query(_ context.Context, _ string) (string, error) {
	s.queried = true
	return s.recall, nil
}

func (s *stubLongTerm) Add(_ context.Context, _, text string) error {
	s.added = append(s.added, text)
	return nil
}

type stubDigest struct {
	summary *digest.Summary
}

func (s *stubDigest) Load(date time.Time) (*digest.Summary, error) {
	if s.summary == nil {
		return nil, &digest.NotFoundError{Date: date, Path: s.Path(date)}
	}
	return s.summary, nil
}

func (s *stubDigest) Path(date time.Time) string {
	return "data/" + date.Format("2006-01-02") + ".json"
}

type stubNews struct {
	articles []news.Article
	query    news.Query
}

func (s *stubNews) TopHeadlines(_ context.Context, q news.Query) ([]news.Article, error) {
	s.query = q
	return s.articles, nil
}

type stubEmail struct {
	sent []mail.SendRequest
	err  error
}

func (s *stubEmail) Send(_ context.Context, req mail.SendRequest) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, req)
	return nil
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return s.text, s.err
}

type stubSpeech struct {
	audio []byte
	err   error
	calls int
}

func (s *stubSpeech) Speak(_ context.Context, _ string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

type stubRenderer struct {
	image []byte
	err   error
}

func (s *stubRenderer) Generate(_ context.Context, _ string) ([]byte, error) {
	return s.image, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(llm *stubLLM, mutate func(*Options)) *Engine {
	opts := Options{
		LLM:        llm,
		Classifier: NewClassifier(llm, testLogger()),
		Logger:     testLogger(),
		Now:        func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewEngine(opts)
}

func TestRunAlwaysProducesReply(t *testing.T) {
	t.Parallel()

	// Every completion call fails with the sentinel.
	llm := &stubLLM{defaultText: "Error: upstream down", routerReply: "Error: upstream down"}
	llm.answers = map[string]string{"": "Error: upstream down"}

	e := newTestEngine(llm, nil)
	reply := e.Run(context.Background(), Input{Text: "hello"})

	if reply.Text == "" {
		t.Fatal("expected a reply even when every call fails")
	}
	if reply.Media != MediaText {
		t.Errorf("expected text media, got %s", reply.Media)
	}
	if reply.Strategy != StrategyFallback {
		t.Errorf("expected fallback strategy, got %s", reply.Strategy)
	}
}

func TestDirectReadsNoMemory(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "DIRECT", defaultText: "Paris."}
	short := &stubShortTerm{history: []Message{{Speaker: SpeakerUser, Text: "old"}}}
	long := &stubLongTerm{recall: "old fact"}

	e := newTestEngine(llm, func(o *Options) {
		o.ShortTerm = short
		o.LongTerm = long
	})
	reply := e.Run(context.Background(), Input{Text: "Capital of France?"})

	if reply.Strategy != StrategyDirect {
		t.Fatalf("expected direct strategy, got %s", reply.Strategy)
	}
	if long.queried {
		t.Error("DIRECT must not query long-term memory")
	}
	// The completion prompt is the bare message, no history context.
	if got := llm.prompts[0]; got != "Capital of France?" {
		t.Errorf("unexpected completion prompt: %q", got)
	}
}

func TestShortTermRelevantHistoryInPrompt(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{defaultText: "You live in Bangalore."}
	// Route, then relevance YES, then image check NO.
	routerSequence(llm, []string{"USE_SHORT_TERM", "YES", "NO"})
	short := &stubShortTerm{history: []Message{
		{Speaker: SpeakerUser, Text: "I live in Bangalore"},
		{Speaker: SpeakerAssistant, Text: "Noted!"},
	}}

	e := newTestEngine(llm, func(o *Options) { o.ShortTerm = short })

	reply := e.Run(context.Background(), Input{ConversationID: "c1", Text: "Where do I live?"})

	if reply.Strategy != StrategyShortTerm {
		t.Fatalf("expected short_term strategy, got %s", reply.Strategy)
	}
	var found bool
	for _, p := range llm.prompts {
		if strings.Contains(p, "I live in Bangalore") && strings.Contains(p, "Where do I live?") {
			found = true
		}
	}
	if !found {
		t.Error("completion prompt should embed the stored history and the question")
	}
}

// routerSequence rewires AskRouter to pop scripted replies in order.
func routerSequence(s *stubLLM, replies []string) {
	s.routerReply = ""
	i := 0
	s.routerFn = func() string {
		if i < len(replies) {
			r := replies[i]
			i++
			return r
		}
		return "NO"
	}
}

func TestShortTermEmptyFallsToDirect(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{defaultText: "fresh answer"}
	routerSequence(llm, []string{"USE_SHORT_TERM", "NO"})
	short := &stubShortTerm{}
	long := &stubLongTerm{recall: "something"}

	e := newTestEngine(llm, func(o *Options) {
		o.ShortTerm = short
		o.LongTerm = long
	})
	reply := e.Run(context.Background(), Input{ConversationID: "c1", Text: "Where do I live?"})

	if reply.Strategy != StrategyDirect {
		t.Fatalf("empty history should fall through to direct, got %s", reply.Strategy)
	}
	if long.queried {
		t.Error("empty short-term history must not trigger a long-term query")
	}
}

func TestShortTermIrrelevantEscalatesToLongTerm(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{defaultText: "You live in Bangalore."}
	routerSequence(llm, []string{"USE_SHORT_TERM", "NO", "YES", "NO"})
	short := &stubShortTerm{history: []Message{{Speaker: SpeakerUser, Text: "nice weather"}}}
	long := &stubLongTerm{recall: "user lives in Bangalore"}

	e := newTestEngine(llm, func(o *Options) {
		o.ShortTerm = short
		o.LongTerm = long
	})
	reply := e.Run(context.Background(), Input{ConversationID: "c1", Text: "Where do I live?"})

	if !long.queried {
		t.Fatal("irrelevant short-term history should escalate to long-term")
	}
	if reply.Strategy != StrategyLongTerm {
		t.Errorf("expected long_term strategy, got %s", reply.Strategy)
	}
}

func TestMemoryUpdatedOnSuccess(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "DIRECT", defaultText: "hi there"}
	short := &stubShortTerm{}
	long := &stubLongTerm{}

	e := newTestEngine(llm, func(o *Options) {
		o.ShortTerm = short
		o.LongTerm = long
	})
	e.Run(context.Background(), Input{ConversationID: "c1", Text: "hello"})

	if len(short.appended) != 2 {
		t.Fatalf("expected exactly 2 short-term rows, got %d", len(short.appended))
	}
	if short.appended[0].Speaker != SpeakerUser || short.appended[0].Text != "hello" {
		t.Errorf("first appended row should be the user message, got %+v", short.appended[0])
	}
	if short.appended[1].Speaker != SpeakerAssistant || short.appended[1].Text != "hi there" {
		t.Errorf("second appended row should be the reply, got %+v", short.appended[1])
	}
	if len(long.added) != 1 || long.added[0] != "hello" {
		t.Errorf("long-term should store the user message, got %v", long.added)
	}
}

func TestSummarizeTodayMissingArtifact(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "SUMMARIZE_TODAY", defaultText: "bullet summary"}
	e := newTestEngine(llm, func(o *Options) { o.Digest = &stubDigest{} })

	reply := e.Run(context.Background(), Input{Text: "summarize my day"})

	if reply.Strategy != StrategyNone {
		t.Fatalf("missing artifact should record strategy none, got %s", reply.Strategy)
	}
	if !strings.Contains(reply.Text, "2026-03-14") {
		t.Errorf("reply should name today's date, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "data/2026-03-14.json") {
		t.Errorf("reply should name the expected path, got %q", reply.Text)
	}
}

func TestSummarizeTodayWithArtifact(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "SUMMARIZE_TODAY"}
	llm.answers = map[string]string{"Summarize the daily digest": "- standup at 10"}
	d := &stubDigest{summary: &digest.Summary{
		Calendar: []digest.Event{{Title: "standup", Start: "10:00", End: "10:15"}},
	}}

	e := newTestEngine(llm, func(o *Options) { o.Digest = d })
	reply := e.Run(context.Background(), Input{Text: "what's my day look like"})

	if reply.Strategy != StrategySummary {
		t.Fatalf("expected summary strategy, got %s", reply.Strategy)
	}
	if reply.Text != "- standup at 10" {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
}

func TestSendEmailMissingRecipient(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "SEND_EMAIL"}
	llm.answers = map[string]string{
		"Extract an email send request": `{"to": [], "subject": "Hi", "body": "Hello"}`,
	}
	sender := &stubEmail{}

	e := newTestEngine(llm, func(o *Options) { o.Email = sender })
	reply := e.Run(context.Background(), Input{Text: "send an email saying hello"})

	if len(sender.sent) != 0 {
		t.Fatal("must not call the email capability without a recipient")
	}
	if !strings.Contains(strings.ToLower(reply.Text), "recipient") {
		t.Errorf("reply should ask for a recipient, got %q", reply.Text)
	}
}

func TestSendEmailMissingBody(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "SEND_EMAIL"}
	llm.answers = map[string]string{
		"Extract an email send request": `{"to": ["sam@example.com"], "subject": "Hi", "body": ""}`,
	}
	sender := &stubEmail{}

	e := newTestEngine(llm, func(o *Options) { o.Email = sender })
	reply := e.Run(context.Background(), Input{Text: "email sam"})

	if len(sender.sent) != 0 {
		t.Fatal("must not call the email capability without a body")
	}
	if !strings.Contains(reply.Text, "What should the email say?") {
		t.Errorf("reply should ask what to write, got %q", reply.Text)
	}
}

func TestSendEmailSuccess(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "SEND_EMAIL"}
	llm.answers = map[string]string{
		"Extract an email send request": `{"to": ["sam@example.com"], "subject": "Meeting", "body": "Moved to 3pm."}`,
	}
	sender := &stubEmail{}

	e := newTestEngine(llm, func(o *Options) { o.Email = sender })
	reply := e.Run(context.Background(), Input{Text: "email sam the meeting moved"})

	if len(sender.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.sent))
	}
	if sender.sent[0].To[0] != "sam@example.com" {
		t.Errorf("unexpected recipient: %v", sender.sent[0].To)
	}
	if !strings.Contains(reply.Text, "sam@example.com") || !strings.Contains(reply.Text, "Meeting") {
		t.Errorf("confirmation should name recipient and subject, got %q", reply.Text)
	}
}

func TestNewsWithHeuristicFallback(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "NEWS"}
	llm.answers = map[string]string{
		// Malformed extraction forces the heuristic path.
		"Extract news search parameters": "sorry, I can't do JSON today",
		"Summarize these headlines":      "- chips are up",
	}
	n := &stubNews{articles: []news.Article{{Title: "Chips rally", Source: "Wire"}}}

	e := newTestEngine(llm, func(o *Options) { o.News = n })
	reply := e.Run(context.Background(), Input{Text: "any technology news from india?"})

	if reply.Strategy != StrategyNews {
		t.Fatalf("expected news strategy, got %s", reply.Strategy)
	}
	if n.query.Category != "technology" {
		t.Errorf("heuristic should pick up the technology category, got %q", n.query.Category)
	}
	if n.query.Country != "in" {
		t.Errorf("heuristic should map india to in, got %q", n.query.Country)
	}
	if reply.Text != "- chips are up" {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
}

func TestNewsCapsAtFiveArticles(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "NEWS"}
	summaryPrompt := ""
	llm.answers = map[string]string{
		"Extract news search parameters": `{"country": "", "category": "general", "keywords": []}`,
	}
	var articles []news.Article
	for i := 0; i < 8; i++ {
		articles = append(articles, news.Article{Title: fmt.Sprintf("story %d", i), Source: "Wire"})
	}
	n := &stubNews{articles: articles}

	e := newTestEngine(llm, func(o *Options) { o.News = n })
	e.Run(context.Background(), Input{Text: "news please"})

	for _, p := range llm.prompts {
		if strings.Contains(p, "Summarize these headlines") {
			summaryPrompt = p
		}
	}
	if summaryPrompt == "" {
		t.Fatal("expected a headline summary call")
	}
	if strings.Contains(summaryPrompt, "story 5") {
		t.Error("summary prompt should hold at most 5 articles")
	}
}

func TestAudioInputMirrorsAudioOutput(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{defaultText: "sure thing"}
	routerSequence(llm, []string{"DIRECT", "NO"}) // route, then image check
	speech := &stubSpeech{audio: []byte("mp3")}

	e := newTestEngine(llm, func(o *Options) {
		o.Transcriber = &stubTranscriber{text: "set a reminder"}
		o.Speech = speech
		o.Renderer = &stubRenderer{image: []byte("png")}
	})
	reply := e.Run(context.Background(), Input{Media: MediaAudio, Bytes: []byte("wav")})

	if reply.Media != MediaAudio {
		t.Fatalf("audio in should yield audio out, got %s", reply.Media)
	}
	if string(reply.Bytes) != "mp3" {
		t.Errorf("unexpected audio payload: %q", reply.Bytes)
	}
}

func TestSpeechFailureDegradesToText(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{defaultText: "sure thing"}
	routerSequence(llm, []string{"DIRECT", "NO"})
	speech := &stubSpeech{err: errors.New("voice service down")}

	e := newTestEngine(llm, func(o *Options) {
		o.Transcriber = &stubTranscriber{text: "set a reminder"}
		o.Speech = speech
	})
	reply := e.Run(context.Background(), Input{Media: MediaAudio, Bytes: []byte("wav")})

	if reply.Media != MediaText {
		t.Fatalf("failed synthesis should degrade to text, got %s", reply.Media)
	}
	if reply.Text != "sure thing" {
		t.Errorf("reply text must survive the degrade, got %q", reply.Text)
	}
	if len(reply.Bytes) != 0 {
		t.Error("no bytes expected after degrade")
	}
}

func TestImageRequestRendersImage(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{defaultText: "a cat wearing a hat"}
	routerSequence(llm, []string{"DIRECT", "YES"})
	renderer := &stubRenderer{image: []byte("png-bytes")}

	e := newTestEngine(llm, func(o *Options) { o.Renderer = renderer })
	reply := e.Run(context.Background(), Input{Text: "draw me a cat in a hat"})

	if reply.Media != MediaImage {
		t.Fatalf("expected image media, got %s", reply.Media)
	}
	if string(reply.Bytes) != "png-bytes" {
		t.Errorf("unexpected image payload: %q", reply.Bytes)
	}
}

func TestImageCheckEvaluatesReplyText(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{answers: map[string]string{"painting subject": "a watercolor of a fox"}}
	routerSequence(llm, []string{"DIRECT", "YES"})
	renderer := &stubRenderer{image: []byte("png-bytes")}

	e := newTestEngine(llm, func(o *Options) { o.Renderer = renderer })
	reply := e.Run(context.Background(), Input{Text: "what's a nice painting subject?"})

	if reply.Media != MediaImage {
		t.Fatalf("expected image media, got %s", reply.Media)
	}
	check := llm.routerSeen[len(llm.routerSeen)-1]
	if !strings.Contains(check, "a watercolor of a fox") {
		t.Errorf("image check must see the reply text, got %q", check)
	}
	if strings.Contains(check, "painting subject") {
		t.Errorf("image check must not see the user request, got %q", check)
	}
}

func TestTranscriptionFailureStillCompletes(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "DIRECT", defaultText: "unused"}
	short := &stubShortTerm{}

	e := newTestEngine(llm, func(o *Options) {
		o.Transcriber = &stubTranscriber{err: errors.New("garbled")}
		o.ShortTerm = short
	})
	reply := e.Run(context.Background(), Input{Media: MediaAudio, Bytes: []byte{0x00}})

	if reply.Text == "" {
		t.Fatal("normalization failure must still produce a reply")
	}
	if !strings.Contains(strings.ToLower(reply.Text), "audio") {
		t.Errorf("reply should apologize about the audio, got %q", reply.Text)
	}
	if len(llm.routerSeen) != 0 {
		t.Error("routing must be skipped when normalization fails")
	}
}

func TestUnknownDecisionTreatedAsDirect(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "SHRUG maybe?", defaultText: "direct answer"}
	long := &stubLongTerm{}

	e := newTestEngine(llm, func(o *Options) { o.LongTerm = long })
	reply := e.Run(context.Background(), Input{Text: "hm"})

	if reply.Strategy != StrategyDirect {
		t.Fatalf("unknown decision should run the direct branch, got %s", reply.Strategy)
	}
}

func TestDefaultConversationID(t *testing.T) {
	t.Parallel()

	llm := &stubLLM{routerReply: "DIRECT", defaultText: "hello"}
	var gotID string
	short := &captureIDShortTerm{id: &gotID}

	e := newTestEngine(llm, func(o *Options) { o.ShortTerm = short })
	e.Run(context.Background(), Input{Text: "hi"})

	if gotID != DefaultConversationID {
		t.Errorf("expected default conversation id, got %q", gotID)
	}
}

type captureIDShortTerm struct {
	id *string
}

func (c *captureIDShortTerm) History(_ context.Context, id string) ([]Message, error) {
	*c.id = id
	return nil, nil
}

func (c *captureIDShortTerm) Append(_ context.Context, id, _, _ string) error {
	*c.id = id
	return nil
}
