package usecase

import (
	"strings"
	"testing"
	"time"

	"helm-assistant/internal/domain"
)

func TestTranscriptAppendKeepsOrder(t *testing.T) {
	ts := NewTranscriptStore("conv-1")

	ts.Append(domain.Message{ID: "m1", Role: domain.RoleUser, Content: "a"})
	ts.Append(domain.Message{ID: "m2", Role: domain.RoleAssistant, Content: "b"})
	ts.Append(domain.Message{ID: "m3", Role: domain.RoleUser, Content: "c"})

	msgs := ts.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
	if msgs[0].ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", msgs[0].ConversationID)
	}
}

func TestTranscriptAppendProvisional(t *testing.T) {
	ts := NewTranscriptStore("conv-1")

	msg := ts.AppendProvisional(domain.RoleUser, "hello")

	if !msg.Provisional() {
		t.Errorf("expected a provisional id, got %q", msg.ID)
	}
	if !strings.HasPrefix(msg.ID, "local-") {
		t.Errorf("id = %q, want local- prefix", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if ts.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ts.Len())
	}
}

func TestTranscriptProvisionalIDsUnique(t *testing.T) {
	ts := NewTranscriptStore("conv-1")

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		msg := ts.AppendProvisional(domain.RoleUser, "x")
		if seen[msg.ID] {
			t.Fatalf("duplicate provisional id %q", msg.ID)
		}
		seen[msg.ID] = true
	}
}

func TestTranscriptReplaceAll(t *testing.T) {
	ts := NewTranscriptStore("conv-1")
	ts.AppendProvisional(domain.RoleUser, "optimistic")

	server := []domain.Message{
		{ID: "s1", Role: domain.RoleUser, Content: "optimistic", CreatedAt: time.Now()},
		{ID: "s2", Role: domain.RoleAssistant, Content: "reply", CreatedAt: time.Now()},
	}
	ts.ReplaceAll(server)

	msgs := ts.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "s1" || msgs[1].ID != "s2" {
		t.Errorf("unexpected ids after replace: %q, %q", msgs[0].ID, msgs[1].ID)
	}

	// Mutating the caller's slice must not affect the store.
	server[0].ID = "mutated"
	if ts.Messages()[0].ID != "s1" {
		t.Error("ReplaceAll should copy the input slice")
	}
}

func TestTranscriptRemoveProvisional(t *testing.T) {
	ts := NewTranscriptStore("conv-1")
	ts.Append(domain.Message{ID: "s1", Role: domain.RoleUser, Content: "confirmed"})
	pending := ts.AppendProvisional(domain.RoleUser, "unsent")

	removed := ts.RemoveProvisional(func(m domain.Message) bool {
		return m.Role == domain.RoleUser && m.Content == "unsent"
	})

	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	msgs := ts.Messages()
	if len(msgs) != 1 || msgs[0].ID != "s1" {
		t.Fatalf("unexpected transcript after removal: %+v", msgs)
	}
	_ = pending
}

func TestTranscriptRemoveProvisionalSparesConfirmed(t *testing.T) {
	ts := NewTranscriptStore("conv-1")
	ts.Append(domain.Message{ID: "s1", Role: domain.RoleUser, Content: "same text"})

	// Predicate matches the confirmed message content, but the message is not
	// provisional and must survive.
	removed := ts.RemoveProvisional(func(m domain.Message) bool {
		return m.Content == "same text"
	})

	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if ts.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ts.Len())
	}
}

func TestTranscriptMessagesReturnsCopy(t *testing.T) {
	ts := NewTranscriptStore("conv-1")
	ts.Append(domain.Message{ID: "m1", Role: domain.RoleUser, Content: "a"})

	msgs := ts.Messages()
	msgs[0].Content = "tampered"

	if ts.Messages()[0].Content != "a" {
		t.Error("Messages should return a copy")
	}
}
