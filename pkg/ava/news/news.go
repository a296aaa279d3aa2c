// Package news implements the headline search capability: a NewsAPI-style
// top-headlines client plus the keyword heuristics used when structured
// parameter extraction from the user message fails.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Categories is the fixed category vocabulary accepted by the headlines API.
var Categories = []string{
	"business", "entertainment", "general", "health", "science", "sports", "technology",
}

// countryNames maps spelled-out country mentions to ISO 3166-1 codes the API
// accepts. Only the countries a chat user plausibly asks about by name.
var countryNames = map[string]string{
	"america":        "us",
	"australia":      "au",
	"brazil":         "br",
	"canada":         "ca",
	"china":          "cn",
	"france":         "fr",
	"germany":        "de",
	"india":          "in",
	"japan":          "jp",
	"mexico":         "mx",
	"uk":             "gb",
	"britain":        "gb",
	"united kingdom": "gb",
	"united states":  "us",
	"usa":            "us",
}

// Query holds the structured search parameters for a headlines request.
type Query struct {
	Country  string   `json:"country"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

// Article is one news result.
type Article struct {
	Title       string
	Description string
	Source      string
	URL         string
	PublishedAt string
}

// Config configures the news client.
type Config struct {
	// APIKey is the NewsAPI key. Can also be set via NEWS_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API root (default: https://newsapi.org/v2).
	BaseURL string `yaml:"base_url"`
}

// Client calls the headlines search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a news search client from config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "news"),
	}
}

type headlinesResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// TopHeadlines fetches the current headlines matching the query.
func (c *Client) TopHeadlines(ctx context.Context, q Query) ([]Article, error) {
	params := url.Values{}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if len(q.Keywords) > 0 {
		params.Set("q", strings.Join(q.Keywords, " "))
	}
	if len(params) == 0 {
		// The API rejects fully empty queries.
		params.Set("category", "general")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/top-headlines?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed headlinesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Status != "ok" {
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("news API error: %s", msg)
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}

	c.logger.Debug("headlines fetched", "count", len(articles))
	return articles, nil
}

// HeuristicQuery derives search parameters from the raw user message when
// structured extraction fails: category vocabulary match, country-name match,
// and the remaining significant words as keywords.
func HeuristicQuery(message string) Query {
	lower := strings.ToLower(message)
	var q Query

	for _, cat := range Categories {
		if strings.Contains(lower, cat) {
			q.Category = cat
			break
		}
	}
	// Common synonyms outside the strict vocabulary.
	if q.Category == "" {
		switch {
		case strings.Contains(lower, "tech"):
			q.Category = "technology"
		case strings.Contains(lower, "sport"):
			q.Category = "sports"
		case strings.Contains(lower, "finance"), strings.Contains(lower, "market"):
			q.Category = "business"
		}
	}

	for name, code := range countryNames {
		if strings.Contains(lower, name) {
			q.Country = code
			break
		}
	}

	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,;:!?\"'")
		if len(w) < 4 || newsStopWords[w] {
			continue
		}
		if w == q.Category {
			continue
		}
		q.Keywords = append(q.Keywords, w)
		if len(q.Keywords) == 3 {
			break
		}
	}

	return q
}

// newsStopWords filters request boilerplate out of heuristic keywords.
var newsStopWords = map[string]bool{
	"news": true, "latest": true, "headlines": true, "today": true,
	"what": true, "whats": true, "tell": true, "show": true, "give": true,
	"about": true, "some": true, "please": true, "from": true, "happening": true,
}
