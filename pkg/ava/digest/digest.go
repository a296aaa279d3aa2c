// Package digest implements the daily summary: on-disk snapshot files
// collected from Google services each morning, loading them back for the
// "summarize today" flow, and the cron scheduler that keeps them fresh.
package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Email is one inbox item in a daily snapshot.
type Email struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

// Event is one calendar entry in a daily snapshot.
type Event struct {
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Task is one pending task in a daily snapshot.
type Task struct {
	Title string `json:"title"`
	Due   string `json:"due,omitempty"`
}

// Summary is the full snapshot for one day, as stored on disk.
type Summary struct {
	Gmail       []Email   `json:"gmail"`
	Calendar    []Event   `json:"calendar"`
	Tasks       []Task    `json:"tasks"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// NotFoundError indicates no snapshot file exists for the requested date.
type NotFoundError struct {
	Date time.Time
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no daily summary for %s (expected %s)", e.Date.Format("2006-01-02"), e.Path)
}

// Loader reads daily snapshot files from a data directory.
type Loader struct {
	dir string
}

// NewLoader creates a loader over dir (default "data" when empty).
func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = "data"
	}
	return &Loader{dir: dir}
}

// Path returns the snapshot file path for a date.
func (l *Loader) Path(date time.Time) string {
	return filepath.Join(l.dir, date.Format("2006-01-02")+".json")
}

// Load reads the snapshot for a date. A missing file yields *NotFoundError.
func (l *Loader) Load(date time.Time) (*Summary, error) {
	path := l.Path(date)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Date: date, Path: path}
		}
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding summary %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the snapshot for a date, creating the data directory if needed.
func (l *Loader) Save(date time.Time, s *Summary) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(l.Path(date), data, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Render formats the snapshot as plain text for the summarization prompt.
func (s *Summary) Render() string {
	var b strings.Builder

	b.WriteString("Emails:\n")
	if len(s.Gmail) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, e := range s.Gmail {
		fmt.Fprintf(&b, "  - From %s: %s", e.From, e.Subject)
		if e.Snippet != "" {
			fmt.Fprintf(&b, " (%s)", e.Snippet)
		}
		b.WriteString("\n")
	}

	b.WriteString("Calendar:\n")
	if len(s.Calendar) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, ev := range s.Calendar {
		fmt.Fprintf(&b, "  - %s (%s to %s)\n", ev.Title, ev.Start, ev.End)
	}

	b.WriteString("Tasks:\n")
	if len(s.Tasks) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, t := range s.Tasks {
		fmt.Fprintf(&b, "  - %s", t.Title)
		if t.Due != "" {
			fmt.Fprintf(&b, " (due %s)", t.Due)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// IsEmpty reports whether the snapshot holds no items at all.
func (s *Summary) IsEmpty() bool {
	return len(s.Gmail) == 0 && len(s.Calendar) == 0 && len(s.Tasks) == 0
}
