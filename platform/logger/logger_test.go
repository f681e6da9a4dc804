package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestTransitionWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.Transition("quotation", "q-1", "PENDING", "ACCEPTED")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "state_transition" || entry["from"] != "PENDING" || entry["to"] != "ACCEPTED" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestWithContextAddsRequestAndUser(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
	ctx = context.WithValue(ctx, UserIDKey, "user-3")
	log.WithContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["request_id"] != "req-9" || entry["user_id"] != "user-3" {
		t.Fatalf("context values missing: %v", entry)
	}
}

func TestSweepCompletedQuietWhenNothingMoved(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.SweepCompleted("invites", 0)
	if buf.Len() != 0 {
		t.Fatalf("expected debug-level sweep log to be filtered, got %q", buf.String())
	}

	log.SweepCompleted("invites", 2)
	if buf.Len() == 0 {
		t.Fatal("expected info-level sweep log")
	}
}
