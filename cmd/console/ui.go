package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/roleplay-agent/internal/services/events"
	"github.com/jwebster45206/roleplay-agent/internal/turn"
	"github.com/jwebster45206/roleplay-agent/pkg/chat"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do?"
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *apiClient
	session      *sessionView
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Scenario selection state
	showScenarioModal bool
	scenarios         []scenario.Summary
	selectedScenario  int
	loadingScenarios  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
	status       string

	// Mechanics lines keyed by the history index of the narration they precede
	notes         map[int][]string
	notice        string
	lastNarrative string

	events       <-chan events.Event
	cancelEvents context.CancelFunc
}

type turnResultMsg struct {
	result *turn.Result
	err    error
}

type sessionMsg struct {
	session *sessionView
	err     error
}

type scenariosLoadedMsg struct {
	scenarios []scenario.Summary
	err       error
}

type sessionCreatedMsg struct {
	session *sessionView
	err     error
}

type eventsConnectedMsg struct {
	stream <-chan events.Event
	cancel context.CancelFunc
	err    error
}

type eventMsg struct {
	event events.Event
	ok    bool
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	mechanicsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client *apiClient) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = chat.MaxActionLength
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:            cfg,
		client:            client,
		textarea:          ta,
		chatViewport:      chatVp,
		metaViewport:      metaVp,
		showScenarioModal: true,
		loadingScenarios:  true,
		notes:             make(map[int][]string),
	}
}

func writeMetadata(s *sessionView) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("CHARACTER") + "\n\n")

	content.WriteString(s.CharacterName + "\n")
	content.WriteString(s.ScenarioName + "\n\n")

	content.WriteString("Location:\n")
	content.WriteString(s.Location + "\n\n")

	content.WriteString(fmt.Sprintf("Turn: %d\n\n", s.Turn))

	content.WriteString("Attributes:\n")
	for _, name := range sortedKeys(s.EffectiveAttributes) {
		content.WriteString(fmt.Sprintf("• %s: %d\n", name, s.EffectiveAttributes[name]))
	}
	content.WriteString("\n")

	content.WriteString("Inventory:\n")
	if len(s.Inventory) == 0 {
		content.WriteString("Empty\n")
	}
	for _, it := range s.Inventory {
		content.WriteString(fmt.Sprintf("• %s x%d\n", it.Name, it.Quantity))
	}
	content.WriteString("\n")

	content.WriteString("Skills:\n")
	if len(s.Skills) == 0 {
		content.WriteString("None\n")
	}
	for _, sk := range s.Skills {
		if sk.Level != nil {
			content.WriteString(fmt.Sprintf("• %s (%d)\n", sk.Name, *sk.Level))
		} else {
			content.WriteString(fmt.Sprintf("• %s\n", sk.Name))
		}
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Act\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /flags: Story flags\n")
	content.WriteString("• /copy: Copy narration\n")

	return content.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// writeChatContent builds the chat content from the session for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("ROLEPLAY AGENT") + "\n\n")
	content.WriteString("Describe what your character does and press Enter.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	if m.session != nil {
		for i, entry := range m.session.History {
			for _, note := range m.notes[i] {
				content.WriteString(mechanicsStyle.Render("» "+wordwrap.String(note, chatWidth-4)) + "\n")
			}
			if len(m.notes[i]) > 0 {
				content.WriteString("\n")
			}
			switch entry.Speaker {
			case state.SpeakerPlayer:
				content.WriteString(userStyle.Render("You: ") + wordwrap.String(entry.Text, chatWidth-6) + "\n\n")
			default:
				content.WriteString(formatNarratorResponse(entry.Text, chatWidth) + "\n\n")
			}
		}
	}

	if m.notice != "" {
		content.WriteString(m.notice + "\n")
	}

	if m.loading {
		if m.status != "" {
			content.WriteString(loadingStyle.Render(m.status) + "\n")
		}
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.showScenarioModal {
		return m.loadScenarios()
	}
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.writeChatContent()
		if m.session != nil {
			m.metaViewport.SetContent(writeMetadata(m.session))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			req := chat.TurnRequest{Action: m.textarea.Value()}
			if strings.HasPrefix(strings.TrimSpace(req.Action), "/") {
				return m.handleCommand(req.Action)
			}
			if err := req.Validate(); err != nil {
				m.notice = errorStyle.Render("Error: " + err.Error())
				m.writeChatContent()
				return m, nil
			}

			m.textarea.Reset()
			m.loading = true
			m.notice = ""
			m.status = "Sending..."
			m.progressTick = 0 // Reset progress animation

			// Show the action right away; the response replaces the whole session
			m.session.History = append(m.session.History, state.DialogueEntry{
				Speaker: state.SpeakerPlayer,
				Text:    req.Action,
			})
			m.writeChatContent()

			return m, tea.Batch(m.sendTurn(req.Action), progressTick())
		}

	case turnResultMsg:
		m.loading = false
		m.status = ""
		if msg.err != nil {
			m.err = msg.err
			m.notice = errorStyle.Render("Error: " + msg.err.Error())
			m.writeChatContent()
			// The turn was rejected or not saved; reload the stored session
			return m, m.refreshSession()
		}
		m.applyResult(msg.result)
		m.writeChatContent()
		m.metaViewport.SetContent(writeMetadata(m.session))

	case sessionMsg:
		if msg.err == nil && msg.session != nil {
			m.session = msg.session
			m.writeChatContent()
			m.metaViewport.SetContent(writeMetadata(m.session))
		}

	case eventsConnectedMsg:
		if msg.err != nil {
			// Progress labels are optional; the turn response carries everything
			return m, nil
		}
		m.events = msg.stream
		m.cancelEvents = msg.cancel
		return m, waitForEvent(m.events)

	case eventMsg:
		if !msg.ok {
			m.events = nil
			return m, nil
		}
		if m.loading {
			m.status = statusFor(msg.event)
			m.writeChatContent()
		}
		return m, waitForEvent(m.events)

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()     // Refresh the chat content to update the progress bar
			return m, progressTick() // Continue the animation
		}
	}

	// Update components for non-mouse events
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// applyResult replaces the local session with the resolved turn's state.
func (m *ConsoleUI) applyResult(res *turn.Result) {
	m.session = &sessionView{GameState: *res.State, EffectiveAttributes: res.Effective}

	var notes []string
	if res.SkillCheck != nil {
		sc := res.SkillCheck
		verdict := "failure"
		if sc.Success {
			verdict = "success"
		}
		if sc.Critical {
			verdict = "critical " + verdict
		}
		notes = append(notes, fmt.Sprintf("%s check: rolled %d%+d = %d vs %d, %s",
			sc.Attribute, sc.Roll, sc.Modifier, sc.Total, sc.Difficulty, verdict))
	}
	notes = append(notes, res.Mechanics...)
	if res.Outcome == turn.OutcomeDegraded {
		notes = append(notes, fmt.Sprintf("the %s step failed, the turn was kept", res.FailedStage))
	}
	if len(notes) > 0 {
		m.notes[len(m.session.History)-1] = notes
	}
	m.lastNarrative = res.Narrative
}

func (m *ConsoleUI) layout() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func statusFor(ev events.Event) string {
	switch ev.Type {
	case events.EventTypeTurnStarted:
		return "Reading your intent..."
	case events.EventTypeTurnIntentApplied:
		if mech, _ := ev.Data["mechanics"].(string); mech != "" {
			return mech + " Narrating..."
		}
		return "Narrating..."
	case events.EventTypeTurnNarrated:
		return "Updating the world..."
	default:
		return "Saving..."
	}
}

func formatNarratorResponse(response string, width int) string {
	hasPrefix := chat.WithSpeaker(response, AgentName) == response

	// If no prefix, we'll add "Narrator: " so reduce available width
	wrapWidth := width
	if !hasPrefix {
		wrapWidth = width - len(AgentName+": ")
	}

	wrappedResponse := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrappedResponse, "\n")
	formattedLines := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formattedLines = append(formattedLines, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			rest := trimmed[idx+1:]
			if len(strings.Fields(speaker)) <= 2 {
				formattedLines = append(formattedLines, speakerStyle.Render(speaker+":")+rest)
				continue
			}
		}

		formattedLines = append(formattedLines, line)
	}

	result := strings.Join(formattedLines, "\n")
	if !hasPrefix {
		result = narratorStyle.Render(AgentName+": ") + result
	}
	return result
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()

	switch cmd {
	case "/help":
		m.notice = titleStyle.Render("Help:") + `
• /help - Show this help
• /flags - Show story flags
• /copy - Copy the last narration to the clipboard
• Ctrl+C - Quit game

How to play:
• Describe an action and press Enter
• Risky actions may call for a d20 check against an attribute
• The panel on the right tracks what the story changed
`

	case "/flags":
		var flags strings.Builder
		flags.WriteString(titleStyle.Render("Flags:") + "\n")
		if len(m.session.Flags) == 0 {
			flags.WriteString("No flags are set.\n")
		}
		for _, k := range sortedKeys(m.session.Flags) {
			flags.WriteString(fmt.Sprintf("• %s = %s\n", k, m.session.Flags[k].String()))
		}
		m.notice = flags.String()

	case "/copy":
		if m.lastNarrative == "" {
			m.notice = promptStyle.Render("Nothing to copy yet.")
		} else if err := clipboard.WriteAll(m.lastNarrative); err != nil {
			m.notice = errorStyle.Render("Copy failed: " + err.Error())
		} else {
			m.notice = promptStyle.Render("Copied the last narration.")
		}

	default:
		m.notice = errorStyle.Render("Unknown command " + cmd + ", try /help")
	}

	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) sendTurn(action string) tea.Cmd {
	client, id := m.client, m.session.ID
	return func() tea.Msg {
		res, err := client.takeTurn(id, action)
		return turnResultMsg{res, err}
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	client, id := m.client, m.session.ID
	return func() tea.Msg {
		s, err := client.getSession(id)
		return sessionMsg{s, err}
	}
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		list, err := client.listScenarios()
		return scenariosLoadedMsg{list, err}
	}
}

func (m ConsoleUI) createSession(scenarioID string) tea.Cmd {
	client, name := m.client, m.config.CharacterName
	return func() tea.Msg {
		s, err := client.createSession(scenarioID, name)
		return sessionCreatedMsg{s, err}
	}
}

func (m ConsoleUI) connectEvents() tea.Cmd {
	client, id := m.client, m.session.ID
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		stream, err := client.streamEvents(ctx, id)
		if err != nil {
			cancel()
			return eventsConnectedMsg{err: err}
		}
		return eventsConnectedMsg{stream: stream, cancel: cancel}
	}
}

func waitForEvent(stream <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-stream
		return eventMsg{ev, ok}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
		}

	case sessionCreatedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.showScenarioModal = false
		if m.width > 0 && m.height > 0 {
			m.layout()
		}
		m.writeChatContent()
		m.metaViewport.SetContent(writeMetadata(m.session))
		m.textarea.Focus()
		m.ready = true
		return m, tea.Batch(textarea.Blink, m.connectEvents())

	case tea.KeyMsg:
		if m.loadingScenarios {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		}

		if m.err != nil || m.loading {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if len(m.scenarios) > 0 {
				m.loading = true
				return m, m.createSession(m.scenarios[m.selectedScenario].ID)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				if m.showScenarioModal {
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.cancelEvents != nil {
		m.cancelEvents()
	}
	return m, tea.Quit
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Your session is saved after every turn.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available scenarios..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(m.err.Error()))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Creating Character..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Setting up your adventure..."))
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")

		for i, s := range m.scenarios {
			line := fmt.Sprintf("%s [%s]", s.Name, s.Rating)
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + line))
				if s.Description != "" {
					content.WriteString("\n" + promptStyle.Render(wordwrap.String("    "+s.Description, 52)))
				}
			} else {
				content.WriteString(modalItemStyle.Render("  " + line))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showScenarioModal {
		return m.renderScenarioModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"", // Add empty line for spacing
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}
	usable = min(max(usable, 10), 80)

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && frame%4 < 2:
			bar.WriteString("▓") // Blinking effect at the progress point
		default:
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
