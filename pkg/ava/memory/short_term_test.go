package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestShortTerm(t *testing.T, maxRows int) *ShortTermStore {
	t.Helper()
	store, err := NewShortTermStore(filepath.Join(t.TempDir(), "test.db"), maxRows, testLogger())
	if err != nil {
		t.Fatalf("NewShortTermStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestShortTermAppendAndHistory(t *testing.T) {
	t.Parallel()

	store := newTestShortTerm(t, DefaultMaxRows)
	ctx := context.Background()

	if err := store.Append(ctx, "c1", SpeakerUser, "hello"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "c1", SpeakerAssistant, "hi!"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	history, err := store.History(ctx, "c1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Speaker != SpeakerUser || history[0].Text != "hello" {
		t.Errorf("history must be oldest-first, got %+v", history[0])
	}
	if history[1].Speaker != SpeakerAssistant || history[1].Text != "hi!" {
		t.Errorf("unexpected second message: %+v", history[1])
	}
}

func TestShortTermPrunesOldRows(t *testing.T) {
	t.Parallel()

	store := newTestShortTerm(t, 4)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := store.Append(ctx, "c1", SpeakerUser, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if got := store.Count(ctx, "c1"); got != 4 {
		t.Fatalf("expected 4 rows after pruning, got %d", got)
	}

	history, err := store.History(ctx, "c1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if history[0].Text != "msg 6" {
		t.Errorf("oldest surviving row should be msg 6, got %q", history[0].Text)
	}
	if history[len(history)-1].Text != "msg 9" {
		t.Errorf("newest row should be msg 9, got %q", history[len(history)-1].Text)
	}
}

func TestShortTermConversationsAreIsolated(t *testing.T) {
	t.Parallel()

	store := newTestShortTerm(t, DefaultMaxRows)
	ctx := context.Background()

	_ = store.Append(ctx, "alice", SpeakerUser, "from alice")
	_ = store.Append(ctx, "bob", SpeakerUser, "from bob")

	history, err := store.History(ctx, "alice")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Text != "from alice" {
		t.Errorf("alice's history leaked: %+v", history)
	}
}

func TestShortTermClear(t *testing.T) {
	t.Parallel()

	store := newTestShortTerm(t, DefaultMaxRows)
	ctx := context.Background()

	_ = store.Append(ctx, "c1", SpeakerUser, "hello")
	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	history, err := store.History(ctx, "c1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history after clear, got %d rows", len(history))
	}
}
