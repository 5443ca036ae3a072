package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/policy"
	"github.com/tgienger/clientboard/internal/synchronizer"
	"github.com/tgienger/clientboard/internal/ui/keys"
	"github.com/tgienger/clientboard/internal/ui/styles"
)

var priorities = []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}

// BoardView shows the four lanes with stats and sync state
type BoardView struct {
	ctx    context.Context
	sync   *synchronizer.Synchronizer
	snap   synchronizer.Snapshot
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int

	lane   int
	rows   [4]int // cursor per lane
	follow string // task the cursor tracks after a move

	// Task creation
	creating     bool
	newTitle     textinput.Model
	newDesc      textinput.Model
	newProject   textinput.Model
	newPriority  int
	editFocusIdx int // 0=title, 1=desc, 2=project, 3=priority, 4=save

	status string

	// Help popup (shown with ? at narrow widths)
	showHelpPopup bool
}

// NewBoardView creates the board view
func NewBoardView(ctx context.Context, sync *synchronizer.Synchronizer) *BoardView {
	newTitle := textinput.New()
	newTitle.Placeholder = "Task title"
	newTitle.CharLimit = 200

	newDesc := textinput.New()
	newDesc.Placeholder = "Description (optional)"
	newDesc.CharLimit = 1000

	newProject := textinput.New()
	newProject.Placeholder = "Project (optional)"
	newProject.CharLimit = 100

	return &BoardView{
		ctx:         ctx,
		sync:        sync,
		snap:        sync.Snapshot(),
		styles:      styles.NewStyles(),
		keys:        keys.DefaultKeyMap(),
		newTitle:    newTitle,
		newDesc:     newDesc,
		newProject:  newProject,
		newPriority: 1,
	}
}

func (v *BoardView) Init() tea.Cmd {
	return nil
}

// SetSnapshot replaces the board contents
func (v *BoardView) SetSnapshot(snap synchronizer.Snapshot) {
	v.snap = snap
	if v.follow != "" {
		for i, t := range v.laneTasks(v.lane) {
			if t.ID == v.follow {
				v.rows[v.lane] = i
				v.follow = ""
				break
			}
		}
	}
	for i := range v.rows {
		n := len(v.laneTasks(i))
		v.rows[i] = clamp(v.rows[i], 0, max(n-1, 0))
	}
}

func (v *BoardView) role() models.Role {
	if v.snap.Session == nil {
		return models.RoleClient
	}
	return v.snap.Session.Role
}

func (v *BoardView) laneTasks(lane int) []models.Task {
	var tasks []models.Task
	for _, t := range v.snap.Tasks {
		if t.Status == models.Lanes[lane] {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// Selected returns the task under the cursor
func (v *BoardView) Selected() (models.Task, bool) {
	tasks := v.laneTasks(v.lane)
	if len(tasks) == 0 {
		return models.Task{}, false
	}
	return tasks[clamp(v.rows[v.lane], 0, len(tasks)-1)], true
}

func (v *BoardView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		return v, nil

	case IntentDone:
		v.status = Describe(msg.Err)
		if msg.Err == nil && msg.Label == "add-task" {
			v.creating = false
		}
		return v, nil

	case tea.KeyMsg:
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}
		if v.creating {
			return v.updateCreating(msg)
		}
		return v.updateNormal(msg)
	}
	return v, nil
}

func (v *BoardView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Left):
		v.lane = (v.lane + len(models.Lanes) - 1) % len(models.Lanes)
		return v, nil

	case key.Matches(msg, v.keys.Right):
		v.lane = (v.lane + 1) % len(models.Lanes)
		return v, nil

	case key.Matches(msg, v.keys.Up):
		if v.rows[v.lane] > 0 {
			v.rows[v.lane]--
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.rows[v.lane] < len(v.laneTasks(v.lane))-1 {
			v.rows[v.lane]++
		}
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if task, ok := v.Selected(); ok {
			return v, func() tea.Msg { return OpenTask{ID: task.ID} }
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		if r := policy.Check(v.role(), policy.ActionCreateTask, nil); !r.Allowed() {
			v.status = fmt.Sprintf("Not allowed: %s", r.Reason)
			return v, nil
		}
		v.startNewTask()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.MoveLeft):
		return v, v.moveSelected(-1)

	case key.Matches(msg, v.keys.MoveRight):
		return v, v.moveSelected(1)

	case key.Matches(msg, v.keys.Chat):
		return v, func() tea.Msg { return OpenChat{} }

	case key.Matches(msg, v.keys.Refresh):
		return v, intent("sync", func() error {
			_, err := v.sync.Poll(v.ctx)
			return err
		})

	case key.Matches(msg, v.keys.Logout):
		return v, intent("logout", func() error {
			return v.sync.Logout(v.ctx)
		})

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil
	}
	return v, nil
}

// canMove reports whether the selected task may be dragged to another lane
func (v *BoardView) canMove() bool {
	task, ok := v.Selected()
	return ok && policy.CanPerform(v.role(), policy.ActionMoveTask, &task)
}

// moveSelected sends the selected task to the adjacent lane. The cursor
// follows the task.
func (v *BoardView) moveSelected(delta int) tea.Cmd {
	task, ok := v.Selected()
	if !ok {
		return nil
	}
	target := v.lane + delta
	if target < 0 || target >= len(models.Lanes) {
		return nil
	}
	lane := models.Lanes[target]
	// Denied moves still go to the synchronizer so the refusal is recorded.
	if v.canMove() {
		v.lane = target
		v.follow = task.ID
	}
	return intent("move", func() error {
		return v.sync.MoveTask(v.ctx, task.ID, lane)
	})
}

func (v *BoardView) startNewTask() {
	v.creating = true
	v.editFocusIdx = 0
	v.newTitle.Reset()
	v.newDesc.Reset()
	v.newProject.Reset()
	v.newPriority = 1
	v.status = ""
	v.updateEditFocus()
}

func (v *BoardView) updateCreating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.creating = false
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.saveTask()

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + 4) % 5
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % 5
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		if v.editFocusIdx < 4 {
			v.editFocusIdx++
			v.updateEditFocus()
			return v, nil
		}
		return v, v.saveTask()
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case 0:
		v.newTitle, cmd = v.newTitle.Update(msg)
	case 1:
		v.newDesc, cmd = v.newDesc.Update(msg)
	case 2:
		v.newProject, cmd = v.newProject.Update(msg)
	case 3:
		switch {
		case key.Matches(msg, v.keys.Left):
			v.newPriority = (v.newPriority + len(priorities) - 1) % len(priorities)
		case key.Matches(msg, v.keys.Right), key.Matches(msg, v.keys.Toggle):
			v.newPriority = (v.newPriority + 1) % len(priorities)
		}
	}
	return v, cmd
}

func (v *BoardView) updateEditFocus() {
	v.newTitle.Blur()
	v.newDesc.Blur()
	v.newProject.Blur()

	switch v.editFocusIdx {
	case 0:
		v.newTitle.Focus()
	case 1:
		v.newDesc.Focus()
	case 2:
		v.newProject.Focus()
	}
}

func (v *BoardView) saveTask() tea.Cmd {
	title := strings.TrimSpace(v.newTitle.Value())
	if title == "" {
		v.status = "Title is required"
		v.editFocusIdx = 0
		v.updateEditFocus()
		return nil
	}
	desc := strings.TrimSpace(v.newDesc.Value())
	project := strings.TrimSpace(v.newProject.Value())
	priority := priorities[v.newPriority]

	return intent("add-task", func() error {
		_, err := v.sync.AddTask(v.ctx, title, desc, priority, project)
		return err
	})
}

// View renders the view
func (v *BoardView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}
	if v.creating {
		return v.renderCreateForm()
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		v.renderHeader(),
		"",
		v.renderLanes(),
		v.renderStatus(),
		v.renderHelp(),
	)
	return styles.CenterView(content, v.width, v.height)
}

func (v *BoardView) renderHeader() string {
	s := v.styles
	who := "not signed in"
	if v.snap.Session != nil {
		who = fmt.Sprintf("%s (%s)", v.snap.Session.Name, v.snap.Session.Role)
	}
	title := lipgloss.JoinHorizontal(lipgloss.Center,
		s.Title.Render("Client Board"),
		"  ",
		s.TitleMuted.Render(who),
		"  ",
		SyncIndicator(s, v.snap),
	)

	st := v.snap.Stats
	overdue := s.TitleMuted.Render(fmt.Sprintf("%d overdue", st.Overdue))
	if st.Overdue > 0 {
		overdue = s.TaskOverdue.Render(fmt.Sprintf("%d overdue", st.Overdue))
	}
	stats := lipgloss.JoinHorizontal(lipgloss.Center,
		s.StatusBar.Render(fmt.Sprintf("%d tasks", st.Total)),
		s.StatusBar.Render(fmt.Sprintf("%d completed", st.Completed)),
		s.Progress.Render(progressBar(st.ProgressPercent, 10)),
		s.StatusBar.Render(fmt.Sprintf("%d%%", st.ProgressPercent)),
		overdue,
	)
	return lipgloss.JoinVertical(lipgloss.Left, title, stats)
}

// SyncIndicator renders the snapshot's sync status
func SyncIndicator(s *styles.Styles, snap synchronizer.Snapshot) string {
	switch snap.Status {
	case synchronizer.StatusSyncing:
		return s.Syncing.Render("● syncing")
	case synchronizer.StatusFailed:
		return s.Failed.Render("● sync failed")
	case synchronizer.StatusSynced:
		return s.Synced.Render("● synced")
	default:
		return s.TitleMuted.Render("○ offline")
	}
}

func (v *BoardView) renderLanes() string {
	contentWidth := styles.ContentWidth(v.width)
	laneWidth := max((contentWidth-len(models.Lanes)*4)/len(models.Lanes), 14)
	laneHeight := max(v.height-10, 6)

	columns := make([]string, 0, len(models.Lanes))
	for i, lane := range models.Lanes {
		columns = append(columns, v.renderLane(i, lane, laneWidth, laneHeight))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func (v *BoardView) renderLane(idx int, lane models.Status, width, height int) string {
	s := v.styles
	tasks := v.laneTasks(idx)

	style := s.Lane
	if idx == v.lane {
		style = s.LaneFocused
	}

	header := s.LaneTitle.Foreground(styles.LaneColor(lane)).
		Render(fmt.Sprintf("%s %d", lane, len(tasks)))

	items := []string{header}
	if len(tasks) == 0 {
		items = append(items, s.TitleMuted.Render("empty"))
	}
	// Each card is 3 lines plus a blank separator
	visible := max((height-2)/4, 1)
	start := 0
	if idx == v.lane && v.rows[idx] >= visible {
		start = v.rows[idx] - visible + 1
	}
	end := min(start+visible, len(tasks))
	for i := start; i < end; i++ {
		selected := idx == v.lane && i == v.rows[idx]
		items = append(items, v.renderCard(tasks[i], width, selected))
	}

	return style.Width(width).Height(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, items...),
	)
}

func (v *BoardView) renderCard(task models.Task, width int, selected bool) string {
	s := v.styles

	titleStyle := s.TaskTitle.Width(width)
	if selected {
		titleStyle = s.ListSelected.Padding(0).Width(width)
	}

	badge := s.TaskPriority.Foreground(styles.PriorityColor(task.Priority)).Render(string(task.Priority))
	due := s.TitleMuted.Render(task.DueDate)
	if models.IsOverdue(&task, v.sync.Now()) {
		due = s.TaskOverdue.Render(task.DueDate)
	}
	meta := badge + " " + due
	if task.Approved() {
		meta += " " + s.Synced.Render("✓")
	}

	bar := s.Progress.Render(progressBar(task.Progress, max(width-6, 4))) +
		s.TitleMuted.Render(fmt.Sprintf(" %d%%", task.Progress))

	return s.TaskItem.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(truncate(task.Title, width)),
		meta,
		bar,
	))
}

func (v *BoardView) renderStatus() string {
	if v.status != "" {
		return v.styles.TaskOverdue.Render(v.status)
	}
	if v.snap.Skipped > 0 {
		return v.styles.TitleMuted.Render(fmt.Sprintf("%d unreadable records ignored", v.snap.Skipped))
	}
	return ""
}

func (v *BoardView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	// At narrow widths, show hint to press ? for help
	if contentWidth > 0 && contentWidth < 60 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}

	s := v.styles
	hint := func(k, desc string) string {
		return s.HelpKey.Render(k) + " " + s.HelpDesc.Render(desc)
	}
	parts := []string{hint("↵", "open"), hint("←→", "lanes"), hint("n", "new")}
	if v.canMove() {
		parts = append(parts, hint("<>", "move"))
	}
	parts = append(parts, hint("m", "chat"), hint("q", "quit"))
	return s.Help.Render(strings.Join(parts, " • "))
}

func (v *BoardView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	helpItems := []string{
		s.HelpKey.Render("↵") + "       open task",
		s.HelpKey.Render("←→") + "      switch lane",
		s.HelpKey.Render("↑↓") + "      select task",
		s.HelpKey.Render("n") + "       new task",
	}
	if v.canMove() {
		helpItems = append(helpItems, s.HelpKey.Render("< >")+"     move task to lane")
	}
	helpItems = append(helpItems,
		s.HelpKey.Render("m")+"       chat",
		s.HelpKey.Render("ctrl+r")+"  sync now",
		s.HelpKey.Render("ctrl+l")+"  log out",
		s.HelpKey.Render("q")+"       quit",
		"",
		s.TitleMuted.Render("Press any key to close"),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, helpItems...)...,
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *BoardView) renderCreateForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	titleStyle := s.Input
	descStyle := s.Input
	projectStyle := s.Input
	btnStyle := s.Button

	switch v.editFocusIdx {
	case 0:
		titleStyle = s.InputFocused
	case 1:
		descStyle = s.InputFocused
	case 2:
		projectStyle = s.InputFocused
	case 4:
		btnStyle = s.ButtonFocused
	}

	var priorityButtons []string
	for i, p := range priorities {
		style := s.TitleMuted.Padding(0, 1)
		if i == v.newPriority {
			style = s.Badge.Foreground(styles.PriorityColor(p))
			if v.editFocusIdx == 3 {
				style = style.Background(styles.Current.Selection)
			}
		}
		priorityButtons = append(priorityButtons, style.Render(string(p)))
	}

	inputWidth := clamp(contentWidth-6, 20, 50)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("New Task"),
		"",
		"Title:",
		titleStyle.Width(inputWidth).Render(v.newTitle.View()),
		"",
		"Description:",
		descStyle.Width(inputWidth).Render(v.newDesc.View()),
		"",
		"Project:",
		projectStyle.Width(inputWidth).Render(v.newProject.View()),
		"",
		"Priority:",
		lipgloss.JoinHorizontal(lipgloss.Center, priorityButtons...),
		"",
		btnStyle.Render(" Create "),
		"",
		s.TaskOverdue.Render(v.status),
		s.TitleMuted.Render("Tab: next • ←→: priority • Ctrl+S: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}
