package api

import (
	"time"

	"helm-assistant/internal/domain"
)

// kindPaths maps each entity kind to its list endpoint.
var kindPaths = map[domain.EntityKind]string{
	domain.KindClass:      "/classes/",
	domain.KindAssignment: "/assignments/",
	domain.KindPDF:        "/pdfs/",
	domain.KindNote:       "/notes/",
}

type conversationWire struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	ContextClassIDs      []string  `json:"context_class_ids"`
	ContextAssignmentIDs []string  `json:"context_assignment_ids"`
	ContextPDFIDs        []string  `json:"context_pdf_ids"`
	ContextNoteIDs       []string  `json:"context_note_ids"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (w conversationWire) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:    w.ID,
		Title: w.Title,
		Selection: domain.ContextSelection{
			ClassIDs:      w.ContextClassIDs,
			AssignmentIDs: w.ContextAssignmentIDs,
			PDFIDs:        w.ContextPDFIDs,
			NoteIDs:       w.ContextNoteIDs,
		},
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type messageWire struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (w messageWire) toDomain(conversationID string) domain.Message {
	return domain.Message{
		ID:             w.ID,
		ConversationID: conversationID,
		Role:           w.Role,
		Content:        w.Content,
		CreatedAt:      w.CreatedAt,
	}
}

type conversationWithMessagesWire struct {
	conversationWire
	Messages []messageWire `json:"messages"`
}

type conversationListWire struct {
	Conversations []conversationWire `json:"conversations"`
	Total         int                `json:"total"`
}

type createConversationWire struct {
	Title                string   `json:"title,omitempty"`
	ContextClassIDs      []string `json:"context_class_ids"`
	ContextAssignmentIDs []string `json:"context_assignment_ids"`
	ContextPDFIDs        []string `json:"context_pdf_ids"`
	ContextNoteIDs       []string `json:"context_note_ids"`
}

// updateContextWire carries whole-set replacements per kind. A nil field is
// omitted and leaves that kind untouched server-side.
type updateContextWire struct {
	ContextClassIDs      *[]string `json:"context_class_ids,omitempty"`
	ContextAssignmentIDs *[]string `json:"context_assignment_ids,omitempty"`
	ContextPDFIDs        *[]string `json:"context_pdf_ids,omitempty"`
	ContextNoteIDs       *[]string `json:"context_note_ids,omitempty"`
}

type streamMessageWire struct {
	Message string `json:"message"`
}

// entityWire is a union of the fields the four entity list endpoints return.
// Which field carries the display label depends on the kind.
type entityWire struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Color    string `json:"color"`
}

func (w entityWire) toDomain(kind domain.EntityKind) domain.Entity {
	e := domain.Entity{ID: w.ID, Kind: kind, Color: w.Color}
	switch kind {
	case domain.KindClass:
		e.Label = w.Name
	case domain.KindPDF:
		e.Label = w.Filename
	default:
		e.Label = w.Title
	}
	return e
}
