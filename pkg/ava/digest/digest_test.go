package digest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLoaderRoundTrip(t *testing.T) {
	t.Parallel()

	loader := NewLoader(t.TempDir())
	date := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	in := &Summary{
		Gmail:       []Email{{From: "boss@example.com", Subject: "Q3 numbers"}},
		Calendar:    []Event{{Title: "standup", Start: "10:00", End: "10:15"}},
		Tasks:       []Task{{Title: "file expenses", Due: "2026-03-15"}},
		ExtractedAt: date,
	}
	if err := loader.Save(date, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	out, err := loader.Load(date)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out.Gmail) != 1 || out.Gmail[0].Subject != "Q3 numbers" {
		t.Errorf("unexpected gmail section: %+v", out.Gmail)
	}
	if len(out.Calendar) != 1 || out.Calendar[0].Title != "standup" {
		t.Errorf("unexpected calendar section: %+v", out.Calendar)
	}
}

func TestLoaderMissingFile(t *testing.T) {
	t.Parallel()

	loader := NewLoader(t.TempDir())
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	_, err := loader.Load(date)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if !strings.Contains(notFound.Path, "2026-03-14.json") {
		t.Errorf("error should carry the expected path, got %q", notFound.Path)
	}
	if !notFound.Date.Equal(date) {
		t.Errorf("error should carry the date, got %v", notFound.Date)
	}
}

func TestSummaryRender(t *testing.T) {
	t.Parallel()

	s := &Summary{
		Gmail: []Email{{From: "sam@example.com", Subject: "lunch?"}},
		Tasks: []Task{{Title: "water plants"}},
	}
	text := s.Render()

	for _, want := range []string{"Emails:", "sam@example.com", "lunch?", "Tasks:", "water plants"} {
		if !strings.Contains(text, want) {
			t.Errorf("render missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "Calendar:\n  (none)") {
		t.Errorf("empty sections should render as (none):\n%s", text)
	}
}

func TestSummaryIsEmpty(t *testing.T) {
	t.Parallel()

	if !(&Summary{}).IsEmpty() {
		t.Error("zero summary should be empty")
	}
	if (&Summary{Tasks: []Task{{Title: "x"}}}).IsEmpty() {
		t.Error("summary with a task is not empty")
	}
}

func TestCollectorCollect(t *testing.T) {
	t.Parallel()

	today := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/google/gmail/me":
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{
				{"from": "a@b.com", "subject": "today's mail", "date": "2026-03-14T07:00:00Z"},
				{"from": "old@b.com", "subject": "yesterday's mail", "date": "2026-03-13T07:00:00Z"},
			}})
		case "/api/google/calendar/me":
			_ = json.NewEncoder(w).Encode(map[string]any{"events": []map[string]string{
				{"summary": "standup", "start": "2026-03-14T10:00:00Z", "end": "2026-03-14T10:15:00Z"},
			}})
		case "/api/google/tasks/me":
			_ = json.NewEncoder(w).Encode(map[string]any{"tasks": []map[string]string{
				{"title": "open task", "status": "needsAction"},
				{"title": "done task", "status": "completed"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewCollector(CollectorConfig{BaseURL: srv.URL, Token: "tok", DataDir: dir}, testLogger())
	c.now = func() time.Time { return today }

	summary, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if len(summary.Gmail) != 1 || summary.Gmail[0].Subject != "today's mail" {
		t.Errorf("gmail should keep only today's items: %+v", summary.Gmail)
	}
	if len(summary.Calendar) != 1 {
		t.Errorf("expected 1 event, got %d", len(summary.Calendar))
	}
	if len(summary.Tasks) != 1 || summary.Tasks[0].Title != "open task" {
		t.Errorf("completed tasks should be dropped: %+v", summary.Tasks)
	}

	// The snapshot must be readable through the loader.
	loaded, err := NewLoader(dir).Load(today)
	if err != nil {
		t.Fatalf("loading saved snapshot: %v", err)
	}
	if len(loaded.Gmail) != 1 {
		t.Errorf("saved snapshot mismatch: %+v", loaded)
	}
}

func TestCollectorPartialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/google/tasks/me" {
			_ = json.NewEncoder(w).Encode(map[string]any{"tasks": []map[string]string{
				{"title": "only task", "status": "needsAction"},
			}})
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCollector(CollectorConfig{BaseURL: srv.URL, DataDir: t.TempDir()}, testLogger())
	c.retryDelay = time.Millisecond

	summary, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect should tolerate partial failure: %v", err)
	}
	if len(summary.Gmail) != 0 || len(summary.Calendar) != 0 {
		t.Error("failed sections should be empty")
	}
	if len(summary.Tasks) != 1 {
		t.Errorf("surviving section should be kept, got %+v", summary.Tasks)
	}
}
