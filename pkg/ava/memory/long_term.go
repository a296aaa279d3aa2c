// Package memory – long_term.go implements the semantic recall store:
// past utterances with their embeddings, searched by cosine similarity.
// Embeddings are stored as JSON-encoded float32 arrays in SQLite and mirrored
// in an in-process cache, which avoids a vector-database dependency while
// keeping nearest-neighbor queries fast. Recall is deliberately queried
// across all conversations.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// LongTermStore provides persistent semantic recall over past utterances.
type LongTermStore struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   *slog.Logger

	// vectorCache holds all recall embeddings in memory for fast cosine search.
	// Refreshed on open, appended on Add.
	cacheMu sync.RWMutex
	cache   []recallEntry
}

// recallEntry holds one remembered utterance and its embedding.
type recallEntry struct {
	id             string
	conversationID string
	text           string
	embedding      []float32
}

// NewLongTermStore opens or creates the long-term recall database.
func NewLongTermStore(dbPath string, embedder EmbeddingProvider, logger *slog.Logger) (*LongTermStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	store := &LongTermStore{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "long-term"),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := store.refreshCache(); err != nil {
		store.logger.Warn("failed to load recall cache", "error", err)
	}
	return store, nil
}

func (s *LongTermStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS recalls (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			text            TEXT NOT NULL,
			embedding       TEXT NOT NULL,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Add remembers one utterance. The text is embedded and stored; when the
// embedder is disabled the utterance is silently skipped.
func (s *LongTermStore) Add(ctx context.Context, conversationID, text string) error {
	if text == "" {
		return nil
	}
	if s.embedder.Name() == "none" {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return fmt.Errorf("embedder returned no vector")
	}

	embJSON, err := json.Marshal(vectors[0])
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO recalls (id, conversation_id, text, embedding) VALUES (?, ?, ?, ?)",
		id, conversationID, text, string(embJSON),
	); err != nil {
		return fmt.Errorf("insert recall: %w", err)
	}

	s.cacheMu.Lock()
	s.cache = append(s.cache, recallEntry{
		id:             id,
		conversationID: conversationID,
		text:           text,
		embedding:      vectors[0],
	})
	s.cacheMu.Unlock()

	return nil
}

// Query returns the single best-matching remembered utterance for the text,
// or "" when nothing is stored or recall is disabled.
func (s *LongTermStore) Query(ctx context.Context, text string) (string, error) {
	if s.embedder.Name() == "none" {
		return "", nil
	}

	s.cacheMu.RLock()
	size := len(s.cache)
	s.cacheMu.RUnlock()
	if size == 0 {
		return "", nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return "", nil
	}
	queryVec := vectors[0]

	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	best := ""
	bestScore := 0.0
	for _, e := range s.cache {
		if len(e.embedding) == 0 {
			continue
		}
		if sim := cosineSimilarity(queryVec, e.embedding); sim > bestScore {
			bestScore = sim
			best = e.text
		}
	}
	return best, nil
}

// Count returns the number of remembered utterances.
func (s *LongTermStore) Count() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return len(s.cache)
}

// refreshCache loads all recall embeddings into memory.
func (s *LongTermStore) refreshCache() error {
	rows, err := s.db.Query("SELECT id, conversation_id, text, embedding FROM recalls")
	if err != nil {
		return err
	}
	defer rows.Close()

	var cache []recallEntry
	for rows.Next() {
		var e recallEntry
		var embJSON string
		if err := rows.Scan(&e.id, &e.conversationID, &e.text, &embJSON); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(embJSON), &e.embedding); err != nil {
			continue
		}
		cache = append(cache, e)
	}

	s.cacheMu.Lock()
	s.cache = cache
	s.cacheMu.Unlock()

	s.logger.Debug("recall cache loaded", "entries", len(cache))
	return nil
}

// Close closes the database connection.
func (s *LongTermStore) Close() error {
	return s.db.Close()
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
