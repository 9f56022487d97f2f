package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"helm-assistant/internal/domain"
)

// fakeService is an in-memory stand-in for the backend conversation API.
// Snapshots are keyed by conversation id; UpdateContext applies whole-set
// replacement per kind the way the server does.
type fakeService struct {
	mu        sync.Mutex
	snapshots map[string]*domain.ConversationSnapshot
	patches   []domain.ContextPatch
	listCalls int
	getErr    map[string]error
	updateErr error
	nextID    int
}

func newFakeService() *fakeService {
	return &fakeService{
		snapshots: make(map[string]*domain.ConversationSnapshot),
		getErr:    make(map[string]error),
	}
}

func (f *fakeService) put(snap *domain.ConversationSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.ID] = snap
}

func (f *fakeService) GetConversation(_ context.Context, id string) (*domain.ConversationSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	snap, ok := f.snapshots[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return snap, nil
}

func (f *fakeService) ListConversations(_ context.Context, skip, limit int) (*domain.ConversationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	page := &domain.ConversationPage{Total: len(f.snapshots)}
	for _, snap := range f.snapshots {
		page.Conversations = append(page.Conversations, snap.Conversation)
	}
	if skip < len(page.Conversations) {
		page.Conversations = page.Conversations[skip:]
	} else {
		page.Conversations = nil
	}
	if limit > 0 && limit < len(page.Conversations) {
		page.Conversations = page.Conversations[:limit]
	}
	return page, nil
}

func (f *fakeService) CreateConversation(_ context.Context, title string, sel domain.ContextSelection) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if title == "" {
		title = "New Conversation"
	}
	conv := domain.Conversation{ID: fmt.Sprintf("conv-%d", f.nextID), Title: title, Selection: sel.Clone()}
	f.snapshots[conv.ID] = &domain.ConversationSnapshot{Conversation: conv}
	return &conv, nil
}

func (f *fakeService) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[id]; !ok {
		return domain.ErrConversationNotFound
	}
	delete(f.snapshots, id)
	return nil
}

func (f *fakeService) UpdateContext(_ context.Context, id string, patch domain.ContextPatch) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	snap, ok := f.snapshots[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if patch.ClassIDs != nil {
		snap.Selection.ClassIDs = append([]string(nil), *patch.ClassIDs...)
	}
	if patch.AssignmentIDs != nil {
		snap.Selection.AssignmentIDs = append([]string(nil), *patch.AssignmentIDs...)
	}
	if patch.PDFIDs != nil {
		snap.Selection.PDFIDs = append([]string(nil), *patch.PDFIDs...)
	}
	if patch.NoteIDs != nil {
		snap.Selection.NoteIDs = append([]string(nil), *patch.NoteIDs...)
	}
	conv := snap.Conversation
	conv.Selection = snap.Selection.Clone()
	return &conv, nil
}

func (f *fakeService) recordedPatches() []domain.ContextPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ContextPatch(nil), f.patches...)
}

func newTestSession(t *testing.T, svc *fakeService, streamer domain.ReplyStreamer) *SessionController {
	t.Helper()
	if streamer == nil {
		streamer = scriptedStreamer(domain.StreamChunk{Done: true})
	}
	catalog := NewReferenceCatalog(&fakeLister{}, CatalogConfig{}, nil, testLogger())
	return NewSessionController(svc, streamer, catalog, nil, testLogger())
}

func TestSessionCreateMakesActive(t *testing.T) {
	svc := newFakeService()
	sc := newTestSession(t, svc, nil)

	conv, err := sc.Create(context.Background(), "", domain.ContextSelection{ClassIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.Title != "New Conversation" {
		t.Errorf("Title = %q, want server default", conv.Title)
	}
	if sc.ActiveID() != conv.ID {
		t.Errorf("ActiveID = %q, want %q", sc.ActiveID(), conv.ID)
	}
	sel, err := sc.Selection()
	if err != nil {
		t.Fatalf("Selection: %v", err)
	}
	if !sel.Contains(domain.KindClass, "c1") {
		t.Error("initial selection not carried into the session")
	}
}

func TestSessionDeleteActiveClearsActive(t *testing.T) {
	svc := newFakeService()
	sc := newTestSession(t, svc, nil)

	a, _ := sc.Create(context.Background(), "a", domain.ContextSelection{})
	b, _ := sc.Create(context.Background(), "b", domain.ContextSelection{})
	if sc.ActiveID() != b.ID {
		t.Fatalf("ActiveID = %q, want %q", sc.ActiveID(), b.ID)
	}

	// Deleting a non-active conversation leaves the active one alone.
	if err := sc.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("Delete inactive: %v", err)
	}
	if sc.ActiveID() != b.ID {
		t.Errorf("ActiveID = %q after deleting inactive, want %q", sc.ActiveID(), b.ID)
	}

	if err := sc.Delete(context.Background(), b.ID); err != nil {
		t.Fatalf("Delete active: %v", err)
	}
	if sc.ActiveID() != "" {
		t.Errorf("ActiveID = %q after deleting active, want empty", sc.ActiveID())
	}
	if err := sc.Send(context.Background(), "hello"); !errors.Is(err, domain.ErrNoActiveConversation) {
		t.Errorf("Send on landing state: err = %v, want ErrNoActiveConversation", err)
	}
}

func TestSessionSwitchToLoadsSnapshot(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.ConversationSnapshot{
		Conversation: domain.Conversation{ID: "a", Title: "calculus"},
		Messages: []domain.Message{
			{ID: "m1", ConversationID: "a", Role: domain.RoleUser, Content: "hi"},
			{ID: "m2", ConversationID: "a", Role: domain.RoleAssistant, Content: "hello"},
		},
	})
	sc := newTestSession(t, svc, nil)

	if err := sc.SwitchTo(context.Background(), "a"); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	msgs, err := sc.Messages()
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestSessionSwitchLoadFailurePreservesState(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.ConversationSnapshot{Conversation: domain.Conversation{ID: "a"}})
	svc.getErr["b"] = errors.New("connection refused")
	sc := newTestSession(t, svc, nil)

	if err := sc.SwitchTo(context.Background(), "a"); err != nil {
		t.Fatalf("SwitchTo a: %v", err)
	}
	err := sc.SwitchTo(context.Background(), "b")
	if !errors.Is(err, domain.ErrConversationLoad) {
		t.Fatalf("err = %v, want ErrConversationLoad", err)
	}
	if sc.ActiveID() != "a" {
		t.Errorf("ActiveID = %q after failed switch, want a", sc.ActiveID())
	}
}

func TestSessionCompletionAddressesOriginatingConversation(t *testing.T) {
	svc := newFakeService()
	svc.put(&domain.ConversationSnapshot{Conversation: domain.Conversation{ID: "a"}})
	svc.put(&domain.ConversationSnapshot{Conversation: domain.Conversation{ID: "b"}})

	opened := make(chan struct{})
	ch := make(chan domain.StreamChunk)
	streamer := &fakeStreamer{open: func(string) (<-chan domain.StreamChunk, error) {
		close(opened)
		return ch, nil
	}}
	sc := newTestSession(t, svc, streamer)

	if err := sc.SwitchTo(context.Background(), "a"); err != nil {
		t.Fatalf("SwitchTo a: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sc.Send(context.Background(), "explain limits") }()
	<-opened

	if err := sc.SwitchTo(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchTo b: %v", err)
	}

	// The server persists the exchange; reconciliation fetches it back.
	svc.put(&domain.ConversationSnapshot{
		Conversation: domain.Conversation{ID: "a"},
		Messages: []domain.Message{
			{ID: "m1", ConversationID: "a", Role: domain.RoleUser, Content: "explain limits"},
			{ID: "m2", ConversationID: "a", Role: domain.RoleAssistant, Content: "A limit describes..."},
		},
	})
	ch <- domain.StreamChunk{Text: "A limit describes..."}
	ch <- domain.StreamChunk{Done: true}
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs, err := sc.Messages()
	if err != nil {
		t.Fatalf("Messages on b: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("conversation b got %d messages, want 0", len(msgs))
	}

	if err := sc.SwitchTo(context.Background(), "a"); err != nil {
		t.Fatalf("SwitchTo a again: %v", err)
	}
	msgs, err = sc.Messages()
	if err != nil {
		t.Fatalf("Messages on a: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "A limit describes..." {
		t.Fatalf("conversation a messages = %+v", msgs)
	}
	if msgs[1].Provisional() {
		t.Error("assistant message still provisional after reconciliation")
	}
}

func TestSessionConversationsCache(t *testing.T) {
	svc := newFakeService()
	sc := newTestSession(t, svc, nil)
	sc.Create(context.Background(), "a", domain.ContextSelection{})

	calls := func() int {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.listCalls
	}

	if _, _, err := sc.Conversations(context.Background(), 0, 20); err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if _, _, err := sc.Conversations(context.Background(), 0, 20); err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if calls() != 1 {
		t.Errorf("list calls = %d, want 1 (second served from cache)", calls())
	}

	sc.Create(context.Background(), "b", domain.ContextSelection{})
	if _, _, err := sc.Conversations(context.Background(), 0, 20); err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if calls() != 2 {
		t.Errorf("list calls = %d, want 2 (create invalidates cache)", calls())
	}
}

func TestSessionToggleRefreshesCatalog(t *testing.T) {
	svc := newFakeService()
	lister := &fakeLister{entities: map[domain.EntityKind][]domain.Entity{
		domain.KindClass: {{ID: "c1", Label: "Calculus II"}},
	}}
	catalog := NewReferenceCatalog(lister, CatalogConfig{}, nil, testLogger())
	sc := NewSessionController(svc, nil, catalog, nil, testLogger())
	if _, err := sc.Create(context.Background(), "", domain.ContextSelection{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No refresh has run yet; the toggle itself must fetch the kind so the
	// chip resolves to a label instead of a stale placeholder.
	if err := sc.ToggleContext(context.Background(), domain.KindClass, "c1"); err != nil {
		t.Fatalf("ToggleContext: %v", err)
	}
	if lister.callCount() == 0 {
		t.Fatal("toggle did not refresh the catalog")
	}

	chips, err := sc.Chips()
	if err != nil {
		t.Fatalf("Chips: %v", err)
	}
	if len(chips) != 1 || chips[0].Label != "Calculus II" || chips[0].Stale {
		t.Errorf("chips = %+v, want one fresh Calculus II chip", chips)
	}
}

func TestSessionConversationsCacheHonorsLimit(t *testing.T) {
	svc := newFakeService()
	sc := newTestSession(t, svc, nil)
	for _, title := range []string{"a", "b", "c"} {
		if _, err := sc.Create(context.Background(), title, domain.ContextSelection{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	convs, total, err := sc.Conversations(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("Conversations(0, 1): %v", err)
	}
	if len(convs) != 1 || total != 3 {
		t.Fatalf("Conversations(0, 1) = %d items, total %d, want 1 and 3", len(convs), total)
	}

	// A wider request must not be served the one-element page.
	convs, total, err = sc.Conversations(context.Background(), 0, 20)
	if err != nil {
		t.Fatalf("Conversations(0, 20): %v", err)
	}
	if len(convs) != 3 || total != 3 {
		t.Errorf("Conversations(0, 20) = %d items, total %d, want 3 and 3", len(convs), total)
	}

	// The wide page covers the whole list, so a narrower request can reuse
	// it without another fetch.
	before := func() int {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.listCalls
	}()
	convs, _, err = sc.Conversations(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("Conversations(0, 2): %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("Conversations(0, 2) = %d items, want 2", len(convs))
	}
	after := func() int {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.listCalls
	}()
	if after != before {
		t.Errorf("list calls went from %d to %d, want narrower page served from cache", before, after)
	}
}
