package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	collectRetries    = 3
	collectRetryDelay = 5 * time.Second
)

// CollectorConfig configures the daily extraction job.
type CollectorConfig struct {
	// BaseURL is the root of the Google aggregation service, which exposes
	// /api/google/{gmail,calendar,tasks}/me.
	BaseURL string `yaml:"base_url"`

	// Token authenticates against the aggregation service.
	Token string `yaml:"token"`

	// DataDir is where daily snapshot files are written (default "data").
	DataDir string `yaml:"data_dir"`
}

// Collector pulls today's emails, events and tasks and writes the snapshot
// file the summarize-today flow reads.
type Collector struct {
	cfg        CollectorConfig
	loader     *Loader
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	retryDelay time.Duration
}

// NewCollector creates a collector from config.
func NewCollector(cfg CollectorConfig, logger *slog.Logger) *Collector {
	return &Collector{
		cfg:        cfg,
		loader:     NewLoader(cfg.DataDir),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "digest"),
		now:        time.Now,
		retryDelay: collectRetryDelay,
	}
}

type gmailPayload struct {
	Messages []struct {
		From    string `json:"from"`
		Subject string `json:"subject"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"messages"`
}

type calendarPayload struct {
	Events []struct {
		Summary string `json:"summary"`
		Start   string `json:"start"`
		End     string `json:"end"`
	} `json:"events"`
}

type tasksPayload struct {
	Tasks []struct {
		Title  string `json:"title"`
		Due    string `json:"due"`
		Status string `json:"status"`
	} `json:"tasks"`
}

// Collect fetches all three sources, filters them to today, and saves the
// snapshot. Partial failures degrade to empty sections rather than aborting.
func (c *Collector) Collect(ctx context.Context) (*Summary, error) {
	today := c.now().Format("2006-01-02")
	s := &Summary{ExtractedAt: c.now()}

	var gmail gmailPayload
	if err := c.fetch(ctx, "/api/google/gmail/me", &gmail); err != nil {
		c.logger.Warn("gmail fetch failed", "error", err)
	} else {
		for _, m := range gmail.Messages {
			if m.Date != "" && !strings.HasPrefix(m.Date, today) {
				continue
			}
			s.Gmail = append(s.Gmail, Email{From: m.From, Subject: m.Subject, Snippet: m.Snippet})
		}
	}

	var cal calendarPayload
	if err := c.fetch(ctx, "/api/google/calendar/me", &cal); err != nil {
		c.logger.Warn("calendar fetch failed", "error", err)
	} else {
		for _, ev := range cal.Events {
			if ev.Start != "" && !strings.HasPrefix(ev.Start, today) {
				continue
			}
			s.Calendar = append(s.Calendar, Event{Title: ev.Summary, Start: ev.Start, End: ev.End})
		}
	}

	var tasks tasksPayload
	if err := c.fetch(ctx, "/api/google/tasks/me", &tasks); err != nil {
		c.logger.Warn("tasks fetch failed", "error", err)
	} else {
		for _, t := range tasks.Tasks {
			if strings.EqualFold(t.Status, "completed") {
				continue
			}
			s.Tasks = append(s.Tasks, Task{Title: t.Title, Due: t.Due})
		}
	}

	if err := c.loader.Save(c.now(), s); err != nil {
		return nil, err
	}

	c.logger.Info("daily snapshot saved",
		"emails", len(s.Gmail), "events", len(s.Calendar), "tasks", len(s.Tasks))
	return s, nil
}

// fetch GETs one aggregation endpoint with retries on transient failure.
func (c *Collector) fetch(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= collectRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		if lastErr = c.fetchOnce(ctx, path, out); lastErr == nil {
			return nil
		}
		c.logger.Debug("fetch attempt failed", "path", path, "attempt", attempt, "error", lastErr)
	}
	return lastErr
}

func (c *Collector) fetchOnce(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
