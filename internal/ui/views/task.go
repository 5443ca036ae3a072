package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/policy"
	"github.com/tgienger/clientboard/internal/synchronizer"
	"github.com/tgienger/clientboard/internal/ui/keys"
	"github.com/tgienger/clientboard/internal/ui/styles"
)

type inputMode int

const (
	modeNone inputMode = iota
	modeComment
	modeNotes
	modeSubtask
	modeEdit
	modeLane
)

// TaskView is the detail view of a single task
type TaskView struct {
	ctx    context.Context
	sync   *synchronizer.Synchronizer
	snap   synchronizer.Snapshot
	taskID string
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int

	cursor int // selected checklist item
	mode   inputMode

	commentInput textarea.Model
	notesInput   textarea.Model
	subtaskInput textinput.Model
	editTitle    textinput.Model
	editDesc     textarea.Model
	editFocusIdx int // 0=title, 1=desc
	laneIdx      int // lane picker selection

	status string
}

// NewTaskView creates the detail view for taskID
func NewTaskView(ctx context.Context, sync *synchronizer.Synchronizer, taskID string) *TaskView {
	commentInput := textarea.New()
	commentInput.Placeholder = "Add a comment..."
	commentInput.CharLimit = 2000
	commentInput.SetWidth(50)
	commentInput.SetHeight(3)
	commentInput.ShowLineNumbers = false

	notesInput := textarea.New()
	notesInput.Placeholder = "Internal notes (team only)"
	notesInput.CharLimit = 5000
	notesInput.SetWidth(50)
	notesInput.SetHeight(5)
	notesInput.ShowLineNumbers = false

	subtaskInput := textinput.New()
	subtaskInput.Placeholder = "Checklist item"
	subtaskInput.CharLimit = 200

	editTitle := textinput.New()
	editTitle.Placeholder = "Task title"
	editTitle.CharLimit = 200

	editDesc := textarea.New()
	editDesc.Placeholder = "Description"
	editDesc.CharLimit = 1000
	editDesc.SetWidth(50)
	editDesc.SetHeight(3)
	editDesc.ShowLineNumbers = false

	return &TaskView{
		ctx:          ctx,
		sync:         sync,
		snap:         sync.Snapshot(),
		taskID:       taskID,
		styles:       styles.NewStyles(),
		keys:         keys.DefaultKeyMap(),
		commentInput: commentInput,
		notesInput:   notesInput,
		subtaskInput: subtaskInput,
		editTitle:    editTitle,
		editDesc:     editDesc,
	}
}

func (v *TaskView) Init() tea.Cmd {
	return nil
}

// TaskID returns the id of the task on display
func (v *TaskView) TaskID() string { return v.taskID }

// SetSnapshot refreshes the task from a new snapshot
func (v *TaskView) SetSnapshot(snap synchronizer.Snapshot) {
	v.snap = snap
	if task, ok := v.task(); ok {
		v.cursor = clamp(v.cursor, 0, max(len(task.Subtasks)-1, 0))
	}
}

func (v *TaskView) task() (models.Task, bool) {
	return v.snap.Task(v.taskID)
}

func (v *TaskView) role() models.Role {
	if v.snap.Session == nil {
		return models.RoleClient
	}
	return v.snap.Session.Role
}

func (v *TaskView) can(action policy.Action) bool {
	task, ok := v.task()
	if !ok {
		return false
	}
	return policy.CanPerform(v.role(), action, &task)
}

func (v *TaskView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		inputWidth := clamp(styles.ContentWidth(v.width)-10, 20, 60)
		v.commentInput.SetWidth(inputWidth)
		v.notesInput.SetWidth(inputWidth)
		v.editDesc.SetWidth(inputWidth)
		return v, nil

	case IntentDone:
		v.status = Describe(msg.Err)
		if msg.Err == nil {
			v.closeInput()
		}
		return v, nil

	case tea.KeyMsg:
		if v.mode != modeNone {
			return v.updateInput(msg)
		}
		return v.updateNormal(msg)
	}
	return v, nil
}

func (v *TaskView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	task, ok := v.task()

	switch {
	case key.Matches(msg, v.keys.Back):
		return v, func() tea.Msg { return BackToBoard{} }

	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	}
	if !ok {
		return v, nil
	}

	switch {
	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
		}

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(task.Subtasks)-1 {
			v.cursor++
		}

	case key.Matches(msg, v.keys.Toggle):
		if len(task.Subtasks) == 0 {
			return v, nil
		}
		subtaskID := task.Subtasks[v.cursor].ID
		return v, intent("toggle", func() error {
			return v.sync.ToggleSubtask(v.ctx, task.ID, subtaskID)
		})

	case key.Matches(msg, v.keys.Approve):
		return v, intent("approve", func() error {
			return v.sync.Approve(v.ctx, task.ID)
		})

	case key.Matches(msg, v.keys.Reject):
		return v, intent("reject", func() error {
			return v.sync.Reject(v.ctx, task.ID)
		})

	case key.Matches(msg, v.keys.Comment):
		v.openInput(modeComment)
		return v, textarea.Blink

	case key.Matches(msg, v.keys.AddSubtask):
		v.openInput(modeSubtask)
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Notes):
		if !v.can(policy.ActionEditInternalNotes) {
			v.status = "Internal notes are team only"
			return v, nil
		}
		v.notesInput.SetValue(task.InternalNotes)
		v.openInput(modeNotes)
		return v, textarea.Blink

	case key.Matches(msg, v.keys.Lane):
		if r := policy.Check(v.role(), policy.ActionSetStatus, &task); !r.Allowed() {
			v.status = fmt.Sprintf("Not allowed: %s", r.Reason)
			return v, nil
		}
		v.laneIdx = 0
		for i, lane := range models.Lanes {
			if lane == task.Status {
				v.laneIdx = i
			}
		}
		v.openInput(modeLane)
		return v, nil

	case key.Matches(msg, v.keys.Edit):
		if !v.can(policy.ActionEditTask) {
			v.status = "Only the team can edit tasks"
			return v, nil
		}
		v.editTitle.SetValue(task.Title)
		v.editDesc.SetValue(task.Description)
		v.editFocusIdx = 0
		v.openInput(modeEdit)
		return v, textinput.Blink
	}
	return v, nil
}

func (v *TaskView) openInput(mode inputMode) {
	v.mode = mode
	v.status = ""
	switch mode {
	case modeComment:
		v.commentInput.Reset()
		v.commentInput.Focus()
	case modeNotes:
		v.notesInput.Focus()
	case modeSubtask:
		v.subtaskInput.Reset()
		v.subtaskInput.Focus()
	case modeEdit:
		v.updateEditFocus()
	}
}

func (v *TaskView) closeInput() {
	v.mode = modeNone
	v.commentInput.Blur()
	v.notesInput.Blur()
	v.subtaskInput.Blur()
	v.editTitle.Blur()
	v.editDesc.Blur()
}

func (v *TaskView) updateEditFocus() {
	v.editTitle.Blur()
	v.editDesc.Blur()
	if v.editFocusIdx == 0 {
		v.editTitle.Focus()
	} else {
		v.editDesc.Focus()
	}
}

func (v *TaskView) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.closeInput()
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.submit()

	case v.mode == modeSubtask && key.Matches(msg, v.keys.Enter):
		return v, v.submit()

	case v.mode == modeLane && key.Matches(msg, v.keys.Enter):
		return v, v.submit()

	case v.mode == modeEdit && key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % 2
		v.updateEditFocus()
		return v, nil
	}

	var cmd tea.Cmd
	switch v.mode {
	case modeComment:
		v.commentInput, cmd = v.commentInput.Update(msg)
	case modeNotes:
		v.notesInput, cmd = v.notesInput.Update(msg)
	case modeSubtask:
		v.subtaskInput, cmd = v.subtaskInput.Update(msg)
	case modeEdit:
		if v.editFocusIdx == 0 {
			v.editTitle, cmd = v.editTitle.Update(msg)
		} else {
			v.editDesc, cmd = v.editDesc.Update(msg)
		}
	case modeLane:
		switch {
		case key.Matches(msg, v.keys.Left):
			v.laneIdx = (v.laneIdx + len(models.Lanes) - 1) % len(models.Lanes)
		case key.Matches(msg, v.keys.Right):
			v.laneIdx = (v.laneIdx + 1) % len(models.Lanes)
		}
	}
	return v, cmd
}

// submit sends the open input to the synchronizer. The input stays open
// until the intent succeeds.
func (v *TaskView) submit() tea.Cmd {
	id := v.taskID
	switch v.mode {
	case modeComment:
		text := strings.TrimSpace(v.commentInput.Value())
		if text == "" {
			return nil
		}
		return intent("comment", func() error {
			return v.sync.AddComment(v.ctx, id, text)
		})
	case modeNotes:
		notes := strings.TrimSpace(v.notesInput.Value())
		return intent("notes", func() error {
			return v.sync.UpdateNotes(v.ctx, id, notes)
		})
	case modeSubtask:
		text := strings.TrimSpace(v.subtaskInput.Value())
		if text == "" {
			return nil
		}
		return intent("add-subtask", func() error {
			return v.sync.AddSubtask(v.ctx, id, text)
		})
	case modeEdit:
		title := strings.TrimSpace(v.editTitle.Value())
		desc := strings.TrimSpace(v.editDesc.Value())
		if title == "" {
			v.status = "Title is required"
			return nil
		}
		return intent("edit", func() error {
			return v.sync.EditTask(v.ctx, id, title, desc)
		})
	case modeLane:
		lane := models.Lanes[v.laneIdx]
		return intent("status", func() error {
			return v.sync.SetStatus(v.ctx, id, lane)
		})
	}
	return nil
}

// View renders the view
func (v *TaskView) View() string {
	s := v.styles
	task, ok := v.task()
	if !ok {
		content := lipgloss.JoinVertical(lipgloss.Left,
			s.TitleMuted.Render("This task is no longer on the board."),
			"",
			s.Help.Render(s.HelpKey.Render("esc")+" back"),
		)
		return styles.CenterView(lipgloss.NewStyle().Padding(1, 2).Render(content), v.width, v.height)
	}

	if v.mode == modeEdit {
		return v.renderEditForm()
	}

	maxContentWidth := styles.ContentWidth(v.width)
	textWidth := clamp(maxContentWidth-10, 20, 80)
	labelStyle := s.TitleMuted

	laneStyle := s.Badge.Foreground(styles.LaneColor(task.Status))
	priorityStyle := s.Badge.Foreground(styles.PriorityColor(task.Priority))
	badges := []string{laneStyle.Render(string(task.Status)), priorityStyle.Render(string(task.Priority))}
	switch {
	case task.Approved():
		badges = append(badges, s.Badge.Foreground(styles.Current.Success).Render("Approved"))
	case task.IsApproved != nil:
		badges = append(badges, s.Badge.Foreground(styles.Current.Error).Render("Changes requested"))
	}

	due := task.DueDate
	if models.IsOverdue(&task, v.sync.Now()) {
		due = s.TaskOverdue.Render(due + " (overdue)")
	}
	meta := fmt.Sprintf("%s • %s • due %s", task.ProjectName, task.Assignee, due)

	descText := task.Description
	if descText == "" {
		descText = s.TitleMuted.Render("No description")
	}

	sections := []string{
		s.Title.Render(task.Title),
		lipgloss.JoinHorizontal(lipgloss.Center, badges...),
		s.TitleMuted.Render(meta),
	}
	if v.mode == modeLane {
		sections = append(sections, "", labelStyle.Render("Move to"), v.renderLanePicker())
	}
	sections = append(sections,
		"",
		labelStyle.Render("Description"),
		lipgloss.NewStyle().Width(textWidth).Render(descText),
		"",
		labelStyle.Render(fmt.Sprintf("Checklist %d%%", task.Progress)),
		s.Progress.Render(progressBar(task.Progress, clamp(textWidth-10, 10, 40))),
		v.renderChecklist(task),
	)
	if v.mode == modeSubtask {
		sections = append(sections, s.InputFocused.Width(clamp(textWidth-4, 20, 50)).Render(v.subtaskInput.View()))
	}

	if v.can(policy.ActionViewInternalNotes) {
		notesText := task.InternalNotes
		if notesText == "" {
			notesText = s.TitleMuted.Render("No internal notes")
		}
		sections = append(sections, "", labelStyle.Render("Internal notes (team only)"))
		if v.mode == modeNotes {
			sections = append(sections, s.InputFocused.Render(v.notesInput.View()))
		} else {
			sections = append(sections, lipgloss.NewStyle().Width(textWidth).Render(notesText))
		}
	}

	sections = append(sections, "", labelStyle.Render("Comments"), v.renderComments(task, textWidth))
	if v.mode == modeComment {
		sections = append(sections, "", s.InputFocused.Render(v.commentInput.View()))
	}

	if task.Status == models.StatusPendingApproval && v.role() == models.RoleClient {
		sections = append(sections, "", lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" A - Approve "),
			"  ",
			s.Button.Render(" R - Request changes "),
		))
	}

	sections = append(sections, s.TaskOverdue.Render(v.status), v.renderHelp())

	padded := lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
	return styles.CenterView(padded, v.width, v.height)
}

func (v *TaskView) renderChecklist(task models.Task) string {
	s := v.styles
	if len(task.Subtasks) == 0 {
		return s.TitleMuted.Render("No checklist items")
	}
	var items []string
	for i, st := range task.Subtasks {
		checkbox := "[ ]"
		if st.Completed {
			checkbox = "[x]"
		}
		style := s.ListItem
		if i == v.cursor && v.mode == modeNone {
			style = s.ListSelected
		}
		items = append(items, style.Render(checkbox+" "+st.Text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskView) renderLanePicker() string {
	s := v.styles
	var lanes []string
	for i, lane := range models.Lanes {
		style := s.TitleMuted.Padding(0, 1)
		if i == v.laneIdx {
			style = s.Badge.Foreground(styles.LaneColor(lane)).Background(styles.Current.Selection)
		}
		lanes = append(lanes, style.Render(string(lane)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, lanes...)
}

func (v *TaskView) renderComments(task models.Task, width int) string {
	s := v.styles
	if len(task.Comments) == 0 {
		return s.TitleMuted.Render("No comments yet")
	}
	var lines []string
	for _, c := range task.Comments {
		author := lipgloss.NewStyle().Foreground(styles.RoleColor(c.Role)).Bold(true).
			Render(fmt.Sprintf("%s (%s)", c.Author, c.Role))
		lines = append(lines, lipgloss.JoinVertical(lipgloss.Left,
			author+" "+s.TitleMuted.Render(formatTimestamp(c.Timestamp)),
			lipgloss.NewStyle().Width(width).Render(c.Text),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (v *TaskView) renderHelp() string {
	s := v.styles
	if v.mode == modeLane {
		return s.Help.Render(fmt.Sprintf("%s choose • %s move • %s cancel",
			s.HelpKey.Render("←→"),
			s.HelpKey.Render("↵"),
			s.HelpKey.Render("esc"),
		))
	}
	if v.mode != modeNone {
		submit := "ctrl+s"
		if v.mode == modeSubtask {
			submit = "↵"
		}
		return s.Help.Render(fmt.Sprintf("%s save • %s cancel",
			s.HelpKey.Render(submit),
			s.HelpKey.Render("esc"),
		))
	}

	var parts []string
	if v.can(policy.ActionToggleSubtask) {
		parts = append(parts, fmt.Sprintf("%s toggle", s.HelpKey.Render("space")))
	}
	if v.can(policy.ActionAddSubtask) {
		parts = append(parts, fmt.Sprintf("%s add item", s.HelpKey.Render("s")))
	}
	if v.can(policy.ActionEditTask) {
		parts = append(parts, fmt.Sprintf("%s edit", s.HelpKey.Render("e")))
	}
	if v.can(policy.ActionSetStatus) {
		parts = append(parts, fmt.Sprintf("%s lane", s.HelpKey.Render("t")))
	}
	if v.can(policy.ActionEditInternalNotes) {
		parts = append(parts, fmt.Sprintf("%s notes", s.HelpKey.Render("i")))
	}
	if v.can(policy.ActionApprove) {
		parts = append(parts,
			fmt.Sprintf("%s approve", s.HelpKey.Render("a")),
			fmt.Sprintf("%s request changes", s.HelpKey.Render("r")),
		)
	}
	parts = append(parts,
		fmt.Sprintf("%s comment", s.HelpKey.Render("c")),
		fmt.Sprintf("%s back", s.HelpKey.Render("esc")),
	)
	return s.Help.Render(strings.Join(parts, " • "))
}

func (v *TaskView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	titleStyle := s.Input
	descStyle := s.Input
	if v.editFocusIdx == 0 {
		titleStyle = s.InputFocused
	} else {
		descStyle = s.InputFocused
	}
	inputWidth := clamp(contentWidth-6, 20, 60)

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Edit Task"),
		"",
		"Title:",
		titleStyle.Width(inputWidth).Render(v.editTitle.View()),
		"",
		"Description:",
		descStyle.Render(v.editDesc.View()),
		"",
		s.TaskOverdue.Render(v.status),
		s.TitleMuted.Render("Tab: next • Ctrl+S: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}
