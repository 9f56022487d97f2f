package chat

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"helm-assistant/internal/adapter/tui/theme"
	"helm-assistant/internal/domain"
	"helm-assistant/internal/usecase"
)

// Deps are dependencies injected into the chat model.
type Deps struct {
	Session *usecase.SessionController
	Catalog *usecase.ReferenceCatalog
	Logger  *slog.Logger
}

// Model is the root Bubble Tea model for the assistant chat.
type Model struct {
	deps Deps

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	status    usecase.SendStatus
	partial   string
	errNotice string
	chips     []domain.ContextChip
	quitting  bool

	picking     bool
	pickerItems []pickerItem
	pickerIdx   int
}

// pickerItem is one row of the context picker: a catalog entity and whether
// it is currently attached to the active conversation.
type pickerItem struct {
	Kind     domain.EntityKind
	Entity   domain.Entity
	Selected bool
}

func NewModel(deps Deps) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	input := textarea.New()
	input.Placeholder = "Ask about your classes, assignments, notes..."
	input.CharLimit = 10000
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()

	return Model{
		deps:    deps,
		input:   input,
		spinner: s,
		status:  usecase.SendIdle,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		startupCmd(m.deps.Session),
		refreshCatalogCmd(m.deps.Catalog),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConversationReadyMsg:
		if msg.Err != nil {
			m.errNotice = msg.Err.Error()
			return m, nil
		}
		m.errNotice = ""
		m.refreshChips()
		m.refreshTranscript()
		return m, nil

	case SendStateMsg:
		if msg.ConversationID != m.deps.Session.ActiveID() {
			return m, nil
		}
		m.status = usecase.SendStatus(msg.State)
		if m.status == usecase.SendIdle {
			m.partial = ""
			m.refreshTranscript()
		}
		return m, nil

	case StreamDeltaMsg:
		if msg.ConversationID != m.deps.Session.ActiveID() {
			return m, nil
		}
		m.partial = msg.Partial
		m.refreshTranscript()
		return m, nil

	case StreamErrorMsg:
		if msg.ConversationID == m.deps.Session.ActiveID() {
			m.partial = ""
			m.refreshTranscript()
		}
		return m, nil

	case SendFinishedMsg:
		if msg.Err != nil {
			m.errNotice = userFacing(msg.Err)
		} else {
			m.errNotice = ""
		}
		m.partial = ""
		m.refreshTranscript()
		return m, nil

	case ContextUpdatedMsg:
		m.refreshChips()
		if !msg.Persisted {
			m.errNotice = "context change not saved; it will retry on your next change"
		}
		return m, nil

	case ToggleResultMsg:
		if msg.Err != nil {
			m.errNotice = userFacing(msg.Err)
		}
		m.refreshChips()
		if m.picking {
			m.rebuildPicker()
		}
		return m, nil

	case CatalogReadyMsg:
		if msg.Err != nil {
			m.deps.Logger.Warn("catalog refresh failed", "error", msg.Err)
		}
		m.refreshChips()
		if m.picking {
			m.rebuildPicker()
		}
		return m, nil

	case TranscriptRefreshMsg:
		m.refreshTranscript()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picking {
		return m.handlePickerKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if m.status != usecase.SendIdle {
			return m, nil
		}
		m.input.Reset()
		m.errNotice = ""
		return m, sendCmd(m.deps.Session, text)

	case "ctrl+r":
		if m.errNotice == "" {
			return m, nil
		}
		m.errNotice = ""
		return m, retryCmd(m.deps.Session)

	case "esc":
		if m.errNotice != "" {
			m.errNotice = ""
			m.deps.Session.DismissError()
			return m, nil
		}

	case "ctrl+n":
		return m, newConversationCmd(m.deps.Session)

	case "ctrl+t":
		if m.deps.Session.ActiveID() == "" {
			return m, nil
		}
		m.picking = true
		m.pickerIdx = 0
		m.rebuildPicker()
		return m, refreshCatalogCmd(m.deps.Catalog)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		m.quitting = true
		return m, tea.Quit

	case "esc", "ctrl+t":
		m.picking = false
		m.refreshTranscript()
		return m, nil

	case "up", "k":
		if m.pickerIdx > 0 {
			m.pickerIdx--
			m.renderPicker()
		}
		return m, nil

	case "down", "j":
		if m.pickerIdx < len(m.pickerItems)-1 {
			m.pickerIdx++
			m.renderPicker()
		}
		return m, nil

	case "enter", " ":
		if len(m.pickerItems) == 0 {
			return m, nil
		}
		item := m.pickerItems[m.pickerIdx]
		return m, toggleContextCmd(m.deps.Session, item.Kind, item.Entity.ID)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "  Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderChips())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.errNotice != "" {
		b.WriteString(theme.ErrorBanner.Render(m.errNotice + "  (ctrl+r retry, esc dismiss)"))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m *Model) layout() {
	chipH := 2
	inputH := m.input.Height() + 1
	statusH := 1
	vh := m.height - chipH - inputH - statusH
	if vh < 3 {
		vh = 3
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, vh)
		m.viewport.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = vh
	}
	m.input.SetWidth(m.width)
	m.refreshTranscript()
}

// rebuildPicker collects the catalog entities for all kinds and marks the
// ones attached to the active conversation.
func (m *Model) rebuildPicker() {
	sel, err := m.deps.Session.Selection()
	if err != nil {
		m.picking = false
		return
	}
	m.pickerItems = m.pickerItems[:0]
	for _, kind := range domain.EntityKinds() {
		for _, e := range m.deps.Catalog.Entities(kind) {
			m.pickerItems = append(m.pickerItems, pickerItem{
				Kind:     kind,
				Entity:   e,
				Selected: sel.Contains(kind, e.ID),
			})
		}
	}
	if m.pickerIdx >= len(m.pickerItems) {
		m.pickerIdx = len(m.pickerItems) - 1
	}
	if m.pickerIdx < 0 {
		m.pickerIdx = 0
	}
	m.renderPicker()
}

func (m *Model) renderPicker() {
	if !m.ready {
		return
	}
	var b strings.Builder
	b.WriteString(theme.Bold.Render("Attach context"))
	b.WriteString(theme.TextMuted.Render("  enter toggle · esc done"))
	b.WriteString("\n\n")
	if len(m.pickerItems) == 0 {
		b.WriteString(theme.TextMuted.Render("nothing in your catalog yet"))
	}
	var lastKind domain.EntityKind
	for i, item := range m.pickerItems {
		if item.Kind != lastKind {
			fmt.Fprintf(&b, "%s\n", theme.Bold.Render(string(item.Kind)))
			lastKind = item.Kind
		}
		mark := "[ ]"
		if item.Selected {
			mark = "[x]"
		}
		line := fmt.Sprintf("  %s %s", mark, item.Entity.Label)
		if i == m.pickerIdx {
			line = theme.PickerCursor.Render("> " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
}

func (m *Model) refreshTranscript() {
	if !m.ready || m.picking {
		return
	}
	msgs, err := m.deps.Session.Messages()
	if err != nil {
		m.viewport.SetContent(theme.TextMuted.Render("No conversation selected. Press ctrl+n to start one."))
		return
	}

	var b strings.Builder
	for _, msg := range msgs {
		label := theme.UserLabel.Render("You")
		if msg.Role == domain.RoleAssistant {
			label = theme.AssistantLabel.Render("Helm")
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", label, msg.Content)
	}
	if m.partial != "" {
		fmt.Fprintf(&b, "%s\n%s%s\n", theme.AssistantLabel.Render("Helm"), m.partial, theme.Dim.Render("▌"))
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) refreshChips() {
	chips, err := m.deps.Session.Chips()
	if err != nil {
		m.chips = nil
		return
	}
	m.chips = chips
}

func (m Model) renderChips() string {
	if len(m.chips) == 0 {
		return theme.TextMuted.Render("no context attached")
	}
	parts := make([]string, 0, len(m.chips))
	for _, c := range m.chips {
		style := theme.Chip
		if c.Stale {
			style = theme.StaleChip
		}
		parts = append(parts, style.Render(c.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m Model) renderStatus() string {
	var state string
	switch m.status {
	case usecase.SendSending:
		state = m.spinner.View() + " sending"
	case usecase.SendStreaming:
		state = m.spinner.View() + " streaming"
	case usecase.SendFinalizing:
		state = m.spinner.View() + " finalizing"
	default:
		state = "ready"
	}
	return theme.StatusBar.Render(fmt.Sprintf("%s  %s  enter send · ctrl+t context · ctrl+n new · ctrl+q quit", state, m.deps.Session.ActiveID()))
}

// userFacing formats an error for the banner, marking retryable failures.
func userFacing(err error) string {
	if err == nil {
		return ""
	}
	if domain.Recoverable(err) {
		return err.Error() + " (retryable)"
	}
	return err.Error()
}
