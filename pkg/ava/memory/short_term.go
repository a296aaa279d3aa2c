// Package memory – short_term.go implements the bounded recent-exchange log,
// one per conversation, backed by SQLite.
//
// The store keeps at most maxRows raw rows per conversation (pruned on every
// write), which bounds the read-visible history to the most recent
// maxRows/2 user/assistant exchanges.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// Speaker identifies who produced a message.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// DefaultMaxRows caps raw rows per conversation (10 exchanges).
const DefaultMaxRows = 20

// Message is one (speaker, text) entry of a conversation log.
type Message struct {
	Speaker string
	Text    string
}

// ShortTermStore is the bounded recent-turn log keyed by conversation.
type ShortTermStore struct {
	db      *sql.DB
	maxRows int
	logger  *slog.Logger
}

// NewShortTermStore opens or creates the short-term memory database.
// maxRows <= 0 selects the default cap of 20 rows (10 exchanges).
func NewShortTermStore(dbPath string, maxRows int, logger *slog.Logger) (*ShortTermStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	store := &ShortTermStore{
		db:      db,
		maxRows: maxRows,
		logger:  logger.With("component", "short-term"),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *ShortTermStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			speaker         TEXT NOT NULL,
			text            TEXT NOT NULL,
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_memory_conversation ON memory(conversation_id, id);
	`)
	return err
}

// Append adds one message to a conversation's log and prunes rows beyond the
// cap, oldest first.
func (s *ShortTermStore) Append(ctx context.Context, conversationID, speaker, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO memory (conversation_id, speaker, text) VALUES (?, ?, ?)",
		conversationID, speaker, text,
	); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM memory WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM memory WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		)
	`, conversationID, conversationID, s.maxRows); err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	return tx.Commit()
}

// History returns a conversation's retained messages, oldest first.
func (s *ShortTermStore) History(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT speaker, text FROM (
			SELECT id, speaker, text FROM memory
			WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, conversationID, s.maxRows)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Speaker, &m.Text); err != nil {
			continue
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// Clear removes all messages for a conversation.
func (s *ShortTermStore) Clear(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memory WHERE conversation_id = ?", conversationID)
	return err
}

// Count returns the number of retained rows for a conversation.
func (s *ShortTermStore) Count(ctx context.Context, conversationID string) int {
	var n int
	_ = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memory WHERE conversation_id = ?", conversationID,
	).Scan(&n)
	return n
}

// Close closes the database connection.
func (s *ShortTermStore) Close() error {
	return s.db.Close()
}
