package session

import (
	"testing"
	"time"

	"github.com/openregs/regrag/internal/llm"
)

func TestGetCreatesAndResumes(t *testing.T) {
	m := NewManager(time.Hour, 20)

	id, history := m.Get("")
	if id == "" {
		t.Fatal("empty session id")
	}
	if len(history) != 0 {
		t.Fatalf("new session has %d messages", len(history))
	}

	m.Append(id,
		llm.Message{Role: llm.RoleUser, Content: "q1"},
		llm.Message{Role: llm.RoleAssistant, Content: "a1"},
	)

	got, history := m.Get(id)
	if got != id {
		t.Errorf("resumed id = %q, want %q", got, id)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].Content != "q1" || history[1].Content != "a1" {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestUnknownIDCreatesFreshSession(t *testing.T) {
	m := NewManager(time.Hour, 20)
	id, history := m.Get("not-a-real-session")
	if id == "not-a-real-session" {
		t.Error("unknown id was resumed instead of replaced")
	}
	if len(history) != 0 {
		t.Errorf("fresh session has %d messages", len(history))
	}
}

func TestHistoryTrimmedToBound(t *testing.T) {
	m := NewManager(time.Hour, 4)
	id, _ := m.Get("")

	for i := range 5 {
		m.Append(id,
			llm.Message{Role: llm.RoleUser, Content: string(rune('a' + i))},
			llm.Message{Role: llm.RoleAssistant, Content: string(rune('A' + i))},
		)
	}

	_, history := m.Get(id)
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	// Oldest turns dropped, newest kept.
	if history[0].Content != "d" || history[3].Content != "E" {
		t.Errorf("unexpected surviving history: %+v", history)
	}
}

func TestSessionExpiry(t *testing.T) {
	m := NewManager(time.Minute, 20)
	current := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return current }

	id, _ := m.Get("")
	m.Append(id, llm.Message{Role: llm.RoleUser, Content: "hello"})

	current = current.Add(2 * time.Minute)

	got, history := m.Get(id)
	if got == id {
		t.Error("expired session was resumed")
	}
	if len(history) != 0 {
		t.Errorf("expired session leaked %d messages", len(history))
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1 (only the fresh session)", m.Len())
	}
}

func TestHistoryCopyIsolation(t *testing.T) {
	m := NewManager(time.Hour, 20)
	id, _ := m.Get("")
	m.Append(id, llm.Message{Role: llm.RoleUser, Content: "original"})

	_, history := m.Get(id)
	history[0].Content = "mutated"

	_, again := m.Get(id)
	if again[0].Content != "original" {
		t.Error("caller mutation leaked into stored history")
	}
}
