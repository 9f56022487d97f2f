// Package chat implements the Bubble Tea chat frontend for the assistant.
package chat

// StreamDeltaMsg carries the accumulated partial reply for the conversation
// whose stream produced it.
type StreamDeltaMsg struct {
	ConversationID string
	Partial        string
}

// SendStateMsg mirrors the send state machine for the status line.
type SendStateMsg struct {
	ConversationID string
	State          string
}

// StreamErrorMsg signals a failed send surfaced through the event bus.
type StreamErrorMsg struct {
	ConversationID string
	Detail         string
}

// SendFinishedMsg signals that the blocking send call returned.
type SendFinishedMsg struct {
	Err error
}

// ContextUpdatedMsg signals the selection changed and chips need a refresh.
type ContextUpdatedMsg struct {
	ConversationID string
	Persisted      bool
}

// TranscriptRefreshMsg asks the model to re-render messages from the session.
type TranscriptRefreshMsg struct{}

// ConversationReadyMsg signals the startup conversation is active.
type ConversationReadyMsg struct {
	Err error
}

// ToggleResultMsg signals a context toggle finished.
type ToggleResultMsg struct {
	Err error
}

// CatalogReadyMsg signals the reference catalog finished a refresh.
type CatalogReadyMsg struct {
	Err error
}
