package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"helm-assistant/internal/domain"
)

// ContextSet is the mutable selection of reference entities attached to one
// conversation. Toggles apply locally first and are persisted immediately;
// the wire protocol is whole-set replacement per kind.
//
// A persist in flight does not block further toggles. The last persist's
// payload wins; the server resolves races as last-write-wins.
type ContextSet struct {
	conversationID string
	svc            domain.ConversationService
	bus            domain.EventBus
	logger         *slog.Logger

	// mu guards sel only; it is never held across the persist round-trip,
	// so in-flight persists do not block further toggles.
	mu  sync.Mutex
	sel domain.ContextSelection
}

// NewContextSet creates a context set seeded with the server's selection.
func NewContextSet(conversationID string, initial domain.ContextSelection, svc domain.ConversationService, bus domain.EventBus, logger *slog.Logger) *ContextSet {
	return &ContextSet{
		conversationID: conversationID,
		svc:            svc,
		bus:            bus,
		logger:         logger,
		sel:            initial.Clone(),
	}
}

// Selection returns a copy of the current selection.
func (cs *ContextSet) Selection() domain.ContextSelection {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.sel.Clone()
}

// Toggle flips membership of id in the set for kind and persists the entire
// updated selection for that kind. On persist failure the optimistic local
// toggle is retained and domain.ErrContextPersist is returned; a later
// successful toggle or canonical fetch reconciles state.
func (cs *ContextSet) Toggle(ctx context.Context, kind domain.EntityKind, id string) error {
	if !kind.Valid() || id == "" {
		return domain.NewDomainError("ContextSet.Toggle", domain.ErrInvalidInput, "unknown kind or empty id")
	}

	cs.mu.Lock()
	ids := cs.sel.IDs(kind)
	next := make([]string, 0, len(ids)+1)
	found := false
	for _, v := range ids {
		if v == id {
			found = true
			continue
		}
		next = append(next, v)
	}
	if !found {
		next = append(next, id)
	}
	cs.sel.SetIDs(kind, next)
	cs.mu.Unlock()

	cs.logger.Debug("context toggled",
		"conversation", cs.conversationID,
		"kind", string(kind),
		"id", id,
		"selected", !found,
	)

	conv, err := cs.svc.UpdateContext(ctx, cs.conversationID, domain.PatchForKind(kind, next))
	if err != nil {
		cs.logger.Warn("context persist failed",
			"conversation", cs.conversationID,
			"kind", string(kind),
			"error", err,
		)
		cs.publishUpdated(ctx, false)
		return domain.NewDomainError("ContextSet.Toggle", domain.ErrContextPersist, err.Error())
	}

	// Adopt the server-confirmed selection. If another toggle raced past this
	// persist, its own response will overwrite again: last write wins.
	cs.mu.Lock()
	cs.sel = conv.Selection.Clone()
	cs.mu.Unlock()

	cs.publishUpdated(ctx, true)
	return nil
}

// Adopt replaces the local selection with a server-confirmed one, used when a
// canonical conversation fetch reconciles state.
func (cs *ContextSet) Adopt(sel domain.ContextSelection) {
	cs.mu.Lock()
	cs.sel = sel.Clone()
	cs.mu.Unlock()
}

// Chips resolves every selected id to a display chip via the catalog. Ids
// with no catalog match render with the kind name as a fallback label rather
// than failing; stale ids are tolerated in storage.
func (cs *ContextSet) Chips(catalog *ReferenceCatalog) []domain.ContextChip {
	sel := cs.Selection()

	chips := make([]domain.ContextChip, 0, sel.Count())
	for _, kind := range domain.EntityKinds() {
		for _, id := range sel.IDs(kind) {
			chip := domain.ContextChip{Kind: kind, ID: id}
			if e, ok := catalog.Lookup(kind, id); ok {
				chip.Label = e.Label
				chip.Color = e.Color
			} else {
				chip.Label = string(kind)
				chip.Stale = true
			}
			chips = append(chips, chip)
		}
	}
	return chips
}

func (cs *ContextSet) publishUpdated(ctx context.Context, persisted bool) {
	if cs.bus == nil {
		return
	}
	cs.bus.Publish(ctx, domain.Event{
		Type:           domain.EventContextUpdated,
		Timestamp:      time.Now(),
		ConversationID: cs.conversationID,
		Payload: domain.MarshalPayload(domain.ContextUpdatedPayload{
			Selection: cs.Selection(),
			Persisted: persisted,
		}),
	})
}
