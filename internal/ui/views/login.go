package views

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/synchronizer"
	"github.com/tgienger/clientboard/internal/ui/keys"
	"github.com/tgienger/clientboard/internal/ui/styles"
)

var roles = []models.Role{models.RoleTeam, models.RoleClient}

// LoginView lets the user pick a role and a display name
type LoginView struct {
	ctx    context.Context
	sync   *synchronizer.Synchronizer
	styles *styles.Styles
	keys   keys.KeyMap
	width  int
	height int

	role     int
	name     textinput.Model
	focusIdx int // 0=role, 1=name, 2=confirm
	status   string
	busy     bool
}

// NewLoginView creates the login form
func NewLoginView(ctx context.Context, sync *synchronizer.Synchronizer) *LoginView {
	name := textinput.New()
	name.Placeholder = "Your name"
	name.CharLimit = 60

	return &LoginView{
		ctx:    ctx,
		sync:   sync,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
		name:   name,
	}
}

func (v *LoginView) Init() tea.Cmd {
	v.busy = false
	v.status = ""
	v.focusIdx = 0
	v.updateFocus()
	return nil
}

// Role returns the currently selected role
func (v *LoginView) Role() models.Role { return roles[v.role] }

func (v *LoginView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		return v, nil

	case IntentDone:
		if msg.Label == "login" {
			v.busy = false
			v.status = Describe(msg.Err)
		}
		return v, nil

	case tea.KeyMsg:
		return v.updateKeys(msg)
	}
	return v, nil
}

func (v *LoginView) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return v, tea.Quit

	case key.Matches(msg, v.keys.Save):
		return v, v.submit()

	case msg.String() == "shift+tab":
		v.focusIdx = (v.focusIdx + 2) % 3
		v.updateFocus()
		return v, nil

	case key.Matches(msg, v.keys.Tab):
		v.focusIdx = (v.focusIdx + 1) % 3
		v.updateFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if v.focusIdx < 2 {
			v.focusIdx++
			v.updateFocus()
			return v, nil
		}
		return v, v.submit()
	}

	if v.focusIdx == 0 {
		switch {
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case key.Matches(msg, v.keys.Left), key.Matches(msg, v.keys.Up):
			v.role = (v.role + len(roles) - 1) % len(roles)
		case key.Matches(msg, v.keys.Right), key.Matches(msg, v.keys.Down), key.Matches(msg, v.keys.Toggle):
			v.role = (v.role + 1) % len(roles)
		}
		return v, nil
	}

	if v.focusIdx == 1 {
		var cmd tea.Cmd
		v.name, cmd = v.name.Update(msg)
		return v, cmd
	}
	return v, nil
}

func (v *LoginView) submit() tea.Cmd {
	name := strings.TrimSpace(v.name.Value())
	if name == "" {
		v.status = "Enter your name"
		v.focusIdx = 1
		v.updateFocus()
		return textinput.Blink
	}
	if v.busy {
		return nil
	}
	v.busy = true
	v.status = ""
	role := v.Role()
	return intent("login", func() error {
		return v.sync.Login(v.ctx, role, name)
	})
}

func (v *LoginView) updateFocus() {
	v.name.Blur()
	if v.focusIdx == 1 {
		v.name.Focus()
	}
}

// View renders the view
func (v *LoginView) View() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	var roleButtons []string
	for i, r := range roles {
		style := s.Button
		switch {
		case i == v.role && v.focusIdx == 0:
			style = s.ButtonFocused
		case i == v.role:
			style = s.ButtonPrimary
		}
		roleButtons = append(roleButtons, style.Render(string(r)))
	}

	nameStyle := s.Input
	if v.focusIdx == 1 {
		nameStyle = s.InputFocused
	}
	btnStyle := s.Button
	if v.focusIdx == 2 {
		btnStyle = s.ButtonFocused
	}
	btnLabel := " Enter board "
	if v.busy {
		btnLabel = " Signing in... "
	}

	inputWidth := clamp(contentWidth-6, 20, 40)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Client Board"),
		s.TitleMuted.Render("Choose how you are joining this board"),
		"",
		"Role:",
		lipgloss.JoinHorizontal(lipgloss.Center, roleButtons[0], " ", roleButtons[1]),
		"",
		"Name:",
		nameStyle.Width(inputWidth).Render(v.name.View()),
		"",
		btnStyle.Render(btnLabel),
		"",
		s.TaskOverdue.Render(v.status),
		s.TitleMuted.Render("Tab: next • ←→: role • Ctrl+S: enter • Ctrl+C: quit"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}
