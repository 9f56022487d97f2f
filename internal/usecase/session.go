package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"helm-assistant/internal/domain"
)

// session bundles the per-conversation state machinery. Each conversation
// owns its own transcript, send controller, and context set; nothing here is
// shared across conversations except the injected read-only catalog.
type session struct {
	transcript *TranscriptStore
	sender     *SendController
	contexts   *ContextSet
}

// SessionController owns which conversation is active and the lifecycle of
// per-conversation sessions. Sessions survive a switch away, so a stream
// started on conversation A keeps addressing A's transcript even when B is
// active by the time it finishes.
type SessionController struct {
	svc      domain.ConversationService
	streamer domain.ReplyStreamer
	bus      domain.EventBus
	catalog  *ReferenceCatalog
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	activeID string

	// cached first page of the conversation list, invalidated by any
	// mutation. listLimit records the page size the cache was filled with.
	listCache []domain.Conversation
	listTotal int
	listLimit int
	listValid bool
}

func NewSessionController(svc domain.ConversationService, streamer domain.ReplyStreamer, catalog *ReferenceCatalog, bus domain.EventBus, logger *slog.Logger) *SessionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionController{
		svc:      svc,
		streamer: streamer,
		bus:      bus,
		catalog:  catalog,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// ActiveID returns the active conversation id, or "" when on the landing
// state.
func (s *SessionController) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Create starts a new conversation with an initial context selection and
// makes it active. An empty title is defaulted by the server.
func (s *SessionController) Create(ctx context.Context, title string, sel domain.ContextSelection) (*domain.Conversation, error) {
	conv, err := s.svc.CreateConversation(ctx, title, sel)
	if err != nil {
		return nil, domain.WrapOp("session.create", err)
	}

	s.mu.Lock()
	s.sessions[conv.ID] = s.newSession(conv.ID, conv.Selection, nil)
	s.activeID = conv.ID
	s.listValid = false
	s.mu.Unlock()

	s.logger.Info("conversation created", "conversation_id", conv.ID, "title", conv.Title)
	s.publish(ctx, domain.EventConversationCreated, conv.ID, nil)
	s.publish(ctx, domain.EventConversationSwitched, conv.ID, nil)
	return conv, nil
}

// Delete removes a conversation. Deleting the active conversation clears the
// active id and returns to the landing state; deleting any other conversation
// leaves the active session untouched.
func (s *SessionController) Delete(ctx context.Context, id string) error {
	if err := s.svc.DeleteConversation(ctx, id); err != nil {
		return domain.WrapOp("session.delete", err)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	cleared := s.activeID == id
	if cleared {
		s.activeID = ""
	}
	s.listValid = false
	s.mu.Unlock()

	s.logger.Info("conversation deleted", "conversation_id", id, "was_active", cleared)
	s.publish(ctx, domain.EventConversationDeleted, id, nil)
	if cleared {
		s.publish(ctx, domain.EventConversationSwitched, "", nil)
	}
	return nil
}

// SwitchTo makes the given conversation active, loading its snapshot from
// the server on first visit. A load failure leaves the previous active
// conversation and all local session state intact.
func (s *SessionController) SwitchTo(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.activeID = id
		s.mu.Unlock()
		s.publish(ctx, domain.EventConversationSwitched, id, nil)
		return nil
	}
	s.mu.Unlock()

	snap, err := s.svc.GetConversation(ctx, id)
	if err != nil {
		s.logger.Warn("conversation load failed", "conversation_id", id, "error", err)
		return domain.NewDomainError("session.switch", domain.ErrConversationLoad, err.Error())
	}

	s.mu.Lock()
	// A concurrent SwitchTo may have loaded the session already.
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = s.newSession(id, snap.Selection, snap.Messages)
	}
	s.activeID = id
	s.mu.Unlock()

	s.publish(ctx, domain.EventConversationSwitched, id, nil)
	return nil
}

// Send submits user text on the active conversation.
func (s *SessionController) Send(ctx context.Context, text string) error {
	sess, err := s.active()
	if err != nil {
		return err
	}
	return sess.sender.Send(ctx, text)
}

// Retry re-attempts the last failed send on the active conversation.
func (s *SessionController) Retry(ctx context.Context) error {
	sess, err := s.active()
	if err != nil {
		return err
	}
	return sess.sender.Retry(ctx)
}

// DismissError clears the failure notice on the active conversation.
func (s *SessionController) DismissError() {
	if sess, err := s.active(); err == nil {
		sess.sender.DismissError()
	}
}

// ToggleContext flips one entity in the active conversation's context
// selection and persists the result.
func (s *SessionController) ToggleContext(ctx context.Context, kind domain.EntityKind, id string) error {
	sess, err := s.active()
	if err != nil {
		return err
	}
	// Best-effort refresh; a failure here means a stale chip, not a failed
	// toggle.
	if err := s.catalog.EnsureFresh(ctx, kind); err != nil {
		s.logger.Warn("catalog refresh before toggle failed", "kind", kind, "error", err)
	}
	return sess.contexts.Toggle(ctx, kind, id)
}

// Selection returns the active conversation's context selection.
func (s *SessionController) Selection() (domain.ContextSelection, error) {
	sess, err := s.active()
	if err != nil {
		return domain.ContextSelection{}, err
	}
	return sess.contexts.Selection(), nil
}

// Chips resolves the active selection to display chips via the catalog.
func (s *SessionController) Chips() ([]domain.ContextChip, error) {
	sess, err := s.active()
	if err != nil {
		return nil, err
	}
	return sess.contexts.Chips(s.catalog), nil
}

// Messages returns the active conversation's transcript.
func (s *SessionController) Messages() ([]domain.Message, error) {
	sess, err := s.active()
	if err != nil {
		return nil, err
	}
	return sess.transcript.Messages(), nil
}

// Status reports the active conversation's send state. With no active
// conversation it reports idle.
func (s *SessionController) Status() SendStatus {
	sess, err := s.active()
	if err != nil {
		return SendIdle
	}
	return sess.sender.Status()
}

// PartialText returns the in-flight assistant text on the active
// conversation.
func (s *SessionController) PartialText() string {
	sess, err := s.active()
	if err != nil {
		return ""
	}
	return sess.sender.PartialText()
}

// LastError returns the dismissible failure on the active conversation, if
// any.
func (s *SessionController) LastError() error {
	sess, err := s.active()
	if err != nil {
		return nil
	}
	return sess.sender.LastError()
}

// Conversations returns the conversation list ordered by most recent
// activity, serving from cache until a mutation invalidates it.
func (s *SessionController) Conversations(ctx context.Context, skip, limit int) ([]domain.Conversation, int, error) {
	s.mu.Lock()
	// The cache can only satisfy a request no larger than the page it was
	// filled with, unless it already holds every conversation there is.
	if s.listValid && skip == 0 && (limit <= s.listLimit || len(s.listCache) == s.listTotal) {
		n := len(s.listCache)
		if limit < n {
			n = limit
		}
		convs := make([]domain.Conversation, n)
		copy(convs, s.listCache[:n])
		total := s.listTotal
		s.mu.Unlock()
		return convs, total, nil
	}
	s.mu.Unlock()

	page, err := s.svc.ListConversations(ctx, skip, limit)
	if err != nil {
		return nil, 0, domain.WrapOp("session.list", err)
	}

	if skip == 0 {
		s.mu.Lock()
		s.listCache = page.Conversations
		s.listTotal = page.Total
		s.listLimit = limit
		s.listValid = true
		s.mu.Unlock()
	}
	return page.Conversations, page.Total, nil
}

// newSession builds the transcript/sender/contexts triple for one
// conversation. Caller holds s.mu.
func (s *SessionController) newSession(id string, sel domain.ContextSelection, messages []domain.Message) *session {
	transcript := NewTranscriptStore(id)
	if len(messages) > 0 {
		transcript.ReplaceAll(messages)
	}
	return &session{
		transcript: transcript,
		sender:     NewSendController(transcript, s.streamer, s.bus, s.logger, s.reconcile),
		contexts:   NewContextSet(id, sel, s.svc, s.bus, s.logger),
	}
}

// reconcile refreshes one conversation from the server's canonical snapshot
// after a send commits. It addresses the session the send was started
// against, never whichever conversation is active now, and it skips the
// transcript swap if another send has already begun so provisional messages
// are not clobbered.
func (s *SessionController) reconcile(ctx context.Context, conversationID string) {
	snap, err := s.svc.GetConversation(ctx, conversationID)
	if err != nil {
		s.logger.Warn("reconcile skipped", "conversation_id", conversationID, "error", err)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[conversationID]
	s.listValid = false
	s.mu.Unlock()
	if !ok {
		return
	}

	if sess.sender.Status() == SendIdle {
		sess.transcript.ReplaceAll(snap.Messages)
	}
	sess.contexts.Adopt(snap.Selection)
}

// active returns the active session or ErrNoActiveConversation.
func (s *SessionController) active() (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return nil, domain.NewDomainError("session", domain.ErrNoActiveConversation, "")
	}
	sess, ok := s.sessions[s.activeID]
	if !ok {
		return nil, domain.NewDomainError("session", domain.ErrNoActiveConversation, "")
	}
	return sess, nil
}

func (s *SessionController) publish(ctx context.Context, t domain.EventType, conversationID string, payload any) {
	if s.bus == nil {
		return
	}
	evt := domain.Event{
		Type:           t,
		Timestamp:      time.Now(),
		ConversationID: conversationID,
	}
	if payload != nil {
		evt.Payload = domain.MarshalPayload(payload)
	}
	s.bus.Publish(ctx, evt)
}
