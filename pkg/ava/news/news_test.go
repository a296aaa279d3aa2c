package news

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestHeuristicQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		message  string
		country  string
		category string
	}{
		{"category match", "any business news?", "", "business"},
		{"tech synonym", "what's new in tech", "", "technology"},
		{"sport synonym", "sport headlines please", "", "sports"},
		{"country by name", "news from india today", "in", ""},
		{"country and category", "technology news from germany", "de", "technology"},
		{"usa spelling", "latest from the usa", "us", ""},
		{"nothing recognizable", "what's happening", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := HeuristicQuery(tt.message)
			if q.Country != tt.country {
				t.Errorf("country = %q, want %q", q.Country, tt.country)
			}
			if q.Category != tt.category {
				t.Errorf("category = %q, want %q", q.Category, tt.category)
			}
		})
	}
}

func TestHeuristicQueryKeywordsFiltered(t *testing.T) {
	t.Parallel()

	q := HeuristicQuery("give me the latest news about quantum computing please")
	for _, kw := range q.Keywords {
		switch kw {
		case "latest", "news", "about", "please", "give":
			t.Errorf("stop word %q leaked into keywords", kw)
		}
	}
	if len(q.Keywords) > 3 {
		t.Errorf("at most 3 keywords expected, got %v", q.Keywords)
	}
}

func TestTopHeadlines(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/top-headlines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Error("missing API key header")
		}
		if got := r.URL.Query().Get("category"); got != "technology" {
			t.Errorf("category param = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{"title": "Chips rally", "description": "up 10%", "url": "http://x", "source": {"name": "Wire"}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, testLogger())
	articles, err := c.TopHeadlines(context.Background(), Query{Category: "technology"})
	if err != nil {
		t.Fatalf("TopHeadlines failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].Title != "Chips rally" || articles[0].Source != "Wire" {
		t.Errorf("unexpected article: %+v", articles[0])
	}
}

func TestTopHeadlinesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status": "error", "message": "bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "wrong", BaseURL: srv.URL}, testLogger())
	_, err := c.TopHeadlines(context.Background(), Query{Category: "general"})
	if err == nil {
		t.Fatal("expected an error")
	}
}
