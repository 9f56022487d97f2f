package domain

import (
	"strings"
	"time"
)

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// localIDPrefix marks message ids generated on this client before the server
// has confirmed the message.
const localIDPrefix = "local-"

// Message is a single entry in a conversation transcript.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Provisional reports whether the message id was generated locally and has
// not been confirmed by the server yet.
func (m Message) Provisional() bool {
	return strings.HasPrefix(m.ID, localIDPrefix)
}

// LocalID builds a provisional message id from a locally generated suffix.
func LocalID(suffix string) string {
	return localIDPrefix + suffix
}

// Conversation is the server-owned container for a transcript and its
// attached context selection.
type Conversation struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Selection ContextSelection `json:"selection"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ConversationSnapshot is the canonical server state of one conversation:
// the conversation record plus its full ordered message log.
type ConversationSnapshot struct {
	Conversation
	Messages []Message `json:"messages"`
}

// ConversationPage is one page of the conversation listing, ordered by
// UpdatedAt descending.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// StreamChunk is one increment from the assistant reply stream.
// A chunk with Err set terminates the stream as a failure; a chunk with Done
// set terminates it as a success. The producer sends at most one terminal
// chunk and then closes the channel. A channel that closes without a terminal
// chunk is treated by consumers as an aborted stream.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}
