package domain

import "context"

// ConversationService is the backend collaborator owning conversation
// persistence. The client core never talks to storage directly.
type ConversationService interface {
	// GetConversation fetches the canonical snapshot of one conversation.
	GetConversation(ctx context.Context, id string) (*ConversationSnapshot, error)
	// ListConversations returns a page of conversations ordered by most
	// recently updated.
	ListConversations(ctx context.Context, skip, limit int) (*ConversationPage, error)
	// CreateConversation starts a new conversation with an initial context
	// selection. A blank title is defaulted by the server.
	CreateConversation(ctx context.Context, title string, sel ContextSelection) (*Conversation, error)
	// DeleteConversation removes a conversation and all its messages.
	DeleteConversation(ctx context.Context, id string) error
	// UpdateContext replaces the context selection for the kinds present in
	// the patch and returns the updated conversation.
	UpdateContext(ctx context.Context, id string, patch ContextPatch) (*Conversation, error)
}

// ReplyStreamer is the upstream inference collaborator. It persists the user
// message server-side and streams the assistant reply as ordered text
// increments.
type ReplyStreamer interface {
	StreamReply(ctx context.Context, conversationID, text string) (<-chan StreamChunk, error)
}

// EntityLister enumerates context-eligible reference entities of one kind.
// The client core only reads; entity CRUD belongs to other collaborators.
type EntityLister interface {
	ListEntities(ctx context.Context, kind EntityKind) ([]Entity, error)
}
