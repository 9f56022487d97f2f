package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"helm-assistant/internal/domain"
)

// newProvisionalID generates a locally unique message id for optimistic
// transcript entries. ULIDs sort by creation time, which keeps provisional
// entries stable at the end of the log.
func newProvisionalID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return domain.LocalID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// TranscriptStore is the single source of truth for one conversation's
// visible message order. It merges server-confirmed messages with
// locally-pending optimistic ones.
//
// Order is stable under Append; ReplaceAll is the only operation allowed to
// reorder, and callers only invoke it when no optimistic message would be
// clobbered (after finalize, or on initial load).
type TranscriptStore struct {
	mu             sync.RWMutex
	conversationID string
	msgs           []domain.Message
}

// NewTranscriptStore creates an empty transcript for one conversation.
func NewTranscriptStore(conversationID string) *TranscriptStore {
	return &TranscriptStore{
		conversationID: conversationID,
		msgs:           make([]domain.Message, 0),
	}
}

// ConversationID returns the conversation this transcript belongs to.
func (t *TranscriptStore) ConversationID() string {
	return t.conversationID
}

// Append adds a message to the end of the log. Used for optimistic user
// messages and finalized assistant messages.
func (t *TranscriptStore) Append(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.ConversationID == "" {
		msg.ConversationID = t.conversationID
	}
	t.msgs = append(t.msgs, msg)
}

// AppendProvisional appends a message with a freshly generated local id and
// returns the stored entry.
func (t *TranscriptStore) AppendProvisional(role, content string) domain.Message {
	now := time.Now()
	msg := domain.Message{
		ID:             newProvisionalID(now),
		ConversationID: t.conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
	t.Append(msg)
	return msg
}

// ReplaceAll fully replaces local state with the server's ordered list.
// This is intentionally a full replace, not a merge.
func (t *TranscriptStore) ReplaceAll(serverMessages []domain.Message) {
	cp := make([]domain.Message, len(serverMessages))
	copy(cp, serverMessages)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = cp
}

// RemoveProvisional removes locally-generated messages matching the
// predicate, used to undo a failed send's optimistic entry. Server-confirmed
// messages are never removed. Returns the number of removed entries.
func (t *TranscriptStore) RemoveProvisional(match func(domain.Message) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.msgs[:0]
	removed := 0
	for _, m := range t.msgs {
		if m.Provisional() && match(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	t.msgs = kept
	return removed
}

// Messages returns a copy of the message log.
func (t *TranscriptStore) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := make([]domain.Message, len(t.msgs))
	copy(cp, t.msgs)
	return cp
}

// Len returns the number of messages in the log.
func (t *TranscriptStore) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
