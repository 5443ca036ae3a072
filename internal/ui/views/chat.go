package views

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/clientboard/internal/synchronizer"
	"github.com/tgienger/clientboard/internal/ui/keys"
	"github.com/tgienger/clientboard/internal/ui/styles"
)

// ChatView is the board-wide chat channel shared by team and client
type ChatView struct {
	ctx    context.Context
	sync   *synchronizer.Synchronizer
	snap   synchronizer.Snapshot
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int

	history viewport.Model
	input   textinput.Model
	status  string
}

// NewChatView creates the chat view
func NewChatView(ctx context.Context, sync *synchronizer.Synchronizer) *ChatView {
	input := textinput.New()
	input.Placeholder = "Message"
	input.CharLimit = 2000

	v := &ChatView{
		ctx:     ctx,
		sync:    sync,
		styles:  styles.NewStyles(),
		keys:    keys.DefaultKeyMap(),
		history: viewport.New(60, 10),
		input:   input,
	}
	v.SetSnapshot(sync.Snapshot())
	return v
}

func (v *ChatView) Init() tea.Cmd {
	v.input.Focus()
	return textinput.Blink
}

// SetSnapshot refreshes the message history and keeps it scrolled to the
// newest message
func (v *ChatView) SetSnapshot(snap synchronizer.Snapshot) {
	v.snap = snap
	v.history.SetContent(v.renderMessages())
	v.history.GotoBottom()
}

func (v *ChatView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(v.width)
		v.history.Width = max(contentWidth-4, 20)
		v.history.Height = max(v.height-8, 3)
		v.history.SetContent(v.renderMessages())
		v.history.GotoBottom()
		return v, nil

	case IntentDone:
		v.status = Describe(msg.Err)
		if msg.Err == nil && msg.Label == "chat" {
			v.input.Reset()
		}
		return v, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keys.Back):
			v.input.Blur()
			return v, func() tea.Msg { return BackToBoard{} }

		case msg.String() == "ctrl+c":
			return v, tea.Quit

		case key.Matches(msg, v.keys.Enter):
			text := strings.TrimSpace(v.input.Value())
			if text == "" {
				return v, nil
			}
			return v, intent("chat", func() error {
				_, err := v.sync.SendChat(v.ctx, text)
				return err
			})

		case msg.String() == "pgup", msg.String() == "pgdown":
			var cmd tea.Cmd
			v.history, cmd = v.history.Update(msg)
			return v, cmd
		}

		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}
	return v, nil
}

func (v *ChatView) renderMessages() string {
	s := v.styles
	if len(v.snap.Chat) == 0 {
		return s.TitleMuted.Render("No messages yet. Say hello.")
	}
	width := max(v.history.Width-2, 10)
	var lines []string
	for _, m := range v.snap.Chat {
		author := lipgloss.NewStyle().Foreground(styles.RoleColor(m.Role)).Bold(true).Render(m.Author)
		header := author + " " + s.TitleMuted.Render(string(m.Role)+" • "+formatTimestamp(m.Timestamp))
		lines = append(lines, header, lipgloss.NewStyle().Width(width).Render(m.Text), "")
	}
	return strings.Join(lines, "\n")
}

// View renders the view
func (v *ChatView) View() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.Title.Render("Chat"), "  ", SyncIndicator(s, v.snap)),
		s.Popup.Width(max(contentWidth-4, 20)).Render(v.history.View()),
		s.InputFocused.Width(max(contentWidth-6, 20)).Render(v.input.View()),
		s.TaskOverdue.Render(v.status),
		s.Help.Render(s.HelpKey.Render("↵")+" send • "+s.HelpKey.Render("pgup/pgdn")+" scroll • "+s.HelpKey.Render("esc")+" back"),
	)
	return styles.CenterView(content, v.width, v.height)
}
