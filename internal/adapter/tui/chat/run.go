package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"helm-assistant/internal/domain"
)

// Run creates the Bubble Tea program, bridges event bus traffic into it, and
// blocks until the program exits or ctx is cancelled.
func Run(ctx context.Context, deps Deps, bus domain.EventBus, logger *slog.Logger) error {
	program := tea.NewProgram(
		NewModel(deps),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// Forward streaming progress from the bus into the program. The bus
	// dispatches in publish order, so deltas arrive in sequence.
	unsubs := []func(){
		bus.Subscribe(domain.EventStreamDelta, func(_ context.Context, evt domain.Event) {
			var p domain.StreamDeltaPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return
			}
			program.Send(StreamDeltaMsg{ConversationID: evt.ConversationID, Partial: p.Partial})
		}),
		bus.Subscribe(domain.EventSendState, func(_ context.Context, evt domain.Event) {
			var p domain.SendStatePayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return
			}
			program.Send(SendStateMsg{ConversationID: evt.ConversationID, State: p.State})
		}),
		bus.Subscribe(domain.EventStreamError, func(_ context.Context, evt domain.Event) {
			var p domain.StreamErrorPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return
			}
			program.Send(StreamErrorMsg{ConversationID: evt.ConversationID, Detail: p.Error})
		}),
		bus.Subscribe(domain.EventContextUpdated, func(_ context.Context, evt domain.Event) {
			var p domain.ContextUpdatedPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				return
			}
			program.Send(ContextUpdatedMsg{ConversationID: evt.ConversationID, Persisted: p.Persisted})
		}),
		bus.Subscribe(domain.EventConversationSwitched, func(_ context.Context, evt domain.Event) {
			program.Send(TranscriptRefreshMsg{})
		}),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	logger.Info("starting chat TUI")
	_, err := program.Run()
	return err
}
