package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"helm-assistant/internal/domain"
	"helm-assistant/internal/usecase"
)

// sendCmd runs the blocking send on a background goroutine. Progress arrives
// separately through the event bus bridge; this command only reports the
// final outcome.
func sendCmd(session *usecase.SessionController, text string) tea.Cmd {
	return func() tea.Msg {
		return SendFinishedMsg{Err: session.Send(context.Background(), text)}
	}
}

func retryCmd(session *usecase.SessionController) tea.Cmd {
	return func() tea.Msg {
		return SendFinishedMsg{Err: session.Retry(context.Background())}
	}
}

func toggleContextCmd(session *usecase.SessionController, kind domain.EntityKind, id string) tea.Cmd {
	return func() tea.Msg {
		return ToggleResultMsg{Err: session.ToggleContext(context.Background(), kind, id)}
	}
}

// startupCmd resumes the most recent conversation, or creates one on a
// fresh account.
func startupCmd(session *usecase.SessionController) tea.Cmd {
	return func() tea.Msg {
		convs, _, err := session.Conversations(context.Background(), 0, 1)
		if err != nil {
			return ConversationReadyMsg{Err: err}
		}
		if len(convs) > 0 {
			return ConversationReadyMsg{Err: session.SwitchTo(context.Background(), convs[0].ID)}
		}
		_, err = session.Create(context.Background(), "", domain.ContextSelection{})
		return ConversationReadyMsg{Err: err}
	}
}

func newConversationCmd(session *usecase.SessionController) tea.Cmd {
	return func() tea.Msg {
		_, err := session.Create(context.Background(), "", domain.ContextSelection{})
		return ConversationReadyMsg{Err: err}
	}
}

// refreshCatalogCmd warms the entity cache so chips and the picker resolve
// entity labels.
func refreshCatalogCmd(catalog *usecase.ReferenceCatalog) tea.Cmd {
	return func() tea.Msg {
		return CatalogReadyMsg{Err: catalog.Refresh(context.Background())}
	}
}
