package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"helm-assistant/internal/domain"
	"helm-assistant/internal/usecase"
)

// stubService backs the session controller with a single in-memory
// conversation, applying context patches the way the server does.
type stubService struct {
	mu sync.Mutex

	conv domain.Conversation
}

func (s *stubService) GetConversation(_ context.Context, id string) (*domain.ConversationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.conv.ID {
		return nil, domain.ErrConversationNotFound
	}
	return &domain.ConversationSnapshot{Conversation: s.conv}, nil
}

func (s *stubService) ListConversations(_ context.Context, _, _ int) (*domain.ConversationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.ConversationPage{Conversations: []domain.Conversation{s.conv}, Total: 1}, nil
}

func (s *stubService) CreateConversation(_ context.Context, title string, sel domain.ContextSelection) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title == "" {
		title = "New Conversation"
	}
	s.conv = domain.Conversation{ID: "conv-1", Title: title, Selection: sel.Clone()}
	return &s.conv, nil
}

func (s *stubService) DeleteConversation(_ context.Context, _ string) error {
	return nil
}

func (s *stubService) UpdateContext(_ context.Context, id string, patch domain.ContextPatch) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.conv.ID {
		return nil, domain.ErrConversationNotFound
	}
	if patch.ClassIDs != nil {
		s.conv.Selection.ClassIDs = append([]string(nil), *patch.ClassIDs...)
	}
	if patch.AssignmentIDs != nil {
		s.conv.Selection.AssignmentIDs = append([]string(nil), *patch.AssignmentIDs...)
	}
	if patch.PDFIDs != nil {
		s.conv.Selection.PDFIDs = append([]string(nil), *patch.PDFIDs...)
	}
	if patch.NoteIDs != nil {
		s.conv.Selection.NoteIDs = append([]string(nil), *patch.NoteIDs...)
	}
	conv := s.conv
	conv.Selection = s.conv.Selection.Clone()
	return &conv, nil
}

// stubLister serves a fixed catalog: one class, one note.
type stubLister struct{}

func (stubLister) ListEntities(_ context.Context, kind domain.EntityKind) ([]domain.Entity, error) {
	switch kind {
	case domain.KindClass:
		return []domain.Entity{{ID: "c1", Kind: kind, Label: "Linear Algebra"}}, nil
	case domain.KindNote:
		return []domain.Entity{{ID: "n1", Kind: kind, Label: "Week 3 Recap"}}, nil
	}
	return nil, nil
}

func newTestModel(t *testing.T) (Model, *stubService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &stubService{}
	catalog := usecase.NewReferenceCatalog(stubLister{}, usecase.CatalogConfig{}, nil, logger)
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("catalog refresh: %v", err)
	}
	session := usecase.NewSessionController(svc, nil, catalog, nil, logger)
	if _, err := session.Create(context.Background(), "", domain.ContextSelection{}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	m := NewModel(Deps{Session: session, Catalog: catalog, Logger: logger})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model), svc
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func TestPickerTogglesContext(t *testing.T) {
	m, svc := newTestModel(t)

	updated, _ := m.Update(key(tea.KeyCtrlT))
	m = updated.(Model)
	if !m.picking {
		t.Fatal("ctrl+t did not open the picker")
	}
	if len(m.pickerItems) != 2 {
		t.Fatalf("picker items = %d, want 2", len(m.pickerItems))
	}
	if m.pickerItems[0].Entity.Label != "Linear Algebra" {
		t.Errorf("first picker item = %q, want the class entry", m.pickerItems[0].Entity.Label)
	}

	updated, cmd := m.Update(key(tea.KeyEnter))
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("enter on a picker item returned no command")
	}
	msg := cmd()
	result, ok := msg.(ToggleResultMsg)
	if !ok {
		t.Fatalf("picker enter produced %T, want ToggleResultMsg", msg)
	}
	if result.Err != nil {
		t.Fatalf("toggle: %v", result.Err)
	}

	updated, _ = m.Update(result)
	m = updated.(Model)
	if !m.pickerItems[0].Selected {
		t.Error("picker item not marked selected after toggle")
	}

	svc.mu.Lock()
	got := svc.conv.Selection.ClassIDs
	svc.mu.Unlock()
	if len(got) != 1 || got[0] != "c1" {
		t.Errorf("persisted class ids = %v, want [c1]", got)
	}

	updated, _ = m.Update(key(tea.KeyEscape))
	m = updated.(Model)
	if m.picking {
		t.Error("esc did not close the picker")
	}
}

func TestPickerNavigatesAndTogglesSecondItem(t *testing.T) {
	m, svc := newTestModel(t)

	updated, _ := m.Update(key(tea.KeyCtrlT))
	m = updated.(Model)

	updated, _ = m.Update(key(tea.KeyDown))
	m = updated.(Model)
	if m.pickerIdx != 1 {
		t.Fatalf("pickerIdx = %d after down, want 1", m.pickerIdx)
	}

	_, cmd := m.Update(key(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("enter on a picker item returned no command")
	}
	if msg := cmd(); msg.(ToggleResultMsg).Err != nil {
		t.Fatalf("toggle: %v", msg.(ToggleResultMsg).Err)
	}

	svc.mu.Lock()
	got := svc.conv.Selection.NoteIDs
	svc.mu.Unlock()
	if len(got) != 1 || got[0] != "n1" {
		t.Errorf("persisted note ids = %v, want [n1]", got)
	}
}

func TestPickerRequiresActiveConversation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := usecase.NewReferenceCatalog(stubLister{}, usecase.CatalogConfig{}, nil, logger)
	session := usecase.NewSessionController(&stubService{}, nil, catalog, nil, logger)

	m := NewModel(Deps{Session: session, Catalog: catalog, Logger: logger})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(Model)

	updated, _ = m.Update(key(tea.KeyCtrlT))
	m = updated.(Model)
	if m.picking {
		t.Error("picker opened with no active conversation")
	}
}

func TestPickerViewListsCatalogEntries(t *testing.T) {
	m, _ := newTestModel(t)

	updated, _ := m.Update(key(tea.KeyCtrlT))
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"Attach context", "Linear Algebra", "Week 3 Recap"} {
		if !strings.Contains(view, want) {
			t.Errorf("picker view missing %q", want)
		}
	}
}
