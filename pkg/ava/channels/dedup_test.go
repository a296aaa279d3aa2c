package channels

import (
	"testing"
	"time"
)

func TestDedupSeen(t *testing.T) {
	t.Parallel()

	d := NewDedup(time.Minute)

	if d.Seen("alice", "msg-1") {
		t.Error("first delivery must not be seen")
	}
	if !d.Seen("alice", "msg-1") {
		t.Error("second delivery must be seen")
	}
	if d.Seen("bob", "msg-1") {
		t.Error("same message id from another sender is a different key")
	}
	if d.Seen("alice", "msg-2") {
		t.Error("new message id must not be seen")
	}
}

func TestDedupExpiry(t *testing.T) {
	t.Parallel()

	d := NewDedup(time.Millisecond)
	d.Seen("alice", "msg-1")

	time.Sleep(5 * time.Millisecond)

	if d.Seen("alice", "msg-1") {
		t.Error("expired entry should be forgotten")
	}
}
