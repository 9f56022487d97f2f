package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventStreamStarted   EventType = "stream.started"
	EventStreamDelta     EventType = "stream.delta"
	EventStreamCompleted EventType = "stream.completed"
	EventStreamError     EventType = "stream.error"
	EventSendState       EventType = "send.state"

	EventConversationCreated  EventType = "conversation.created"
	EventConversationDeleted  EventType = "conversation.deleted"
	EventConversationSwitched EventType = "conversation.switched"

	EventContextUpdated   EventType = "context.updated"
	EventCatalogRefreshed EventType = "catalog.refreshed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type           EventType       `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for client events.
// Handlers for one subscriber observe events in publish order; stream deltas
// rely on this to render partial text without reordering.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler for every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
}

// StreamDeltaPayload is the payload for EventStreamDelta events.
// Partial is the full concatenated assistant text so far, not just the
// newest increment, so late subscribers can render without replaying.
type StreamDeltaPayload struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
type StreamCompletedPayload struct {
	Content string `json:"content"`
}

// StreamErrorPayload is the payload for EventStreamError events.
type StreamErrorPayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// SendStatePayload is the payload for EventSendState events.
type SendStatePayload struct {
	State string `json:"state"`
}

// ContextUpdatedPayload is the payload for EventContextUpdated events.
type ContextUpdatedPayload struct {
	Selection ContextSelection `json:"selection"`
	Persisted bool             `json:"persisted"`
}

// MarshalPayload encodes p for use as an Event payload. Marshal failures are
// reported as a null payload rather than an error; payloads are plain structs
// and cannot fail to encode in practice.
func MarshalPayload(p any) json.RawMessage {
	data, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
