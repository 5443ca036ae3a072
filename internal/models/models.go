package models

import (
	"fmt"
	"regexp"
)

// Role is the self-asserted permission class of a board user
type Role string

const (
	RoleTeam   Role = "Team"
	RoleClient Role = "Client"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleTeam, RoleClient:
		return true
	}
	return false
}

// Status is the lane a task sits in
type Status string

const (
	StatusTodo            Status = "To Do"
	StatusInProgress      Status = "In Progress"
	StatusPendingApproval Status = "Pending Approval"
	StatusCompleted       Status = "Completed"
)

// Lanes lists every status in board order
var Lanes = []Status{StatusTodo, StatusInProgress, StatusPendingApproval, StatusCompleted}

// Valid reports whether s is a known lane
func (s Status) Valid() bool {
	for _, l := range Lanes {
		if s == l {
			return true
		}
	}
	return false
}

// Terminal reports whether the lane ends the workflow
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Priority is informational only
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Subtask is a single checklist item
type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Comment represents a comment on a task
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// ChatMessage is a message in the board-wide chat channel
type ChatMessage struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix millis, monotonic per sender
}

// Task represents a single card on the board
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Status        Status    `json:"status"`
	Priority      Priority  `json:"priority"`
	Assignee      string    `json:"assignee"`
	DueDate       string    `json:"dueDate"`
	Progress      int       `json:"progress"`
	Subtasks      []Subtask `json:"subtasks,omitempty"`
	Comments      []Comment `json:"comments,omitempty"`
	InternalNotes string    `json:"internalNotes,omitempty"`
	IsApproved    *bool     `json:"isApproved,omitempty"`
	ProjectName   string    `json:"projectName"`
	CreatedAt     int64     `json:"createdAt"` // unix millis
	UpdatedAt     int64     `json:"updatedAt"` // unix millis
}

// Session is the locally chosen identity. It is not a credential.
type Session struct {
	Role Role   `json:"role"`
	Name string `json:"name"`
}

// Approved reports whether the task has been finalized
func (t *Task) Approved() bool {
	return t.IsApproved != nil && *t.IsApproved
}

// Clone returns a deep copy of the task
func (t Task) Clone() Task {
	c := t
	if t.Subtasks != nil {
		c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	if t.Comments != nil {
		c.Comments = append([]Comment(nil), t.Comments...)
	}
	if t.IsApproved != nil {
		v := *t.IsApproved
		c.IsApproved = &v
	}
	return c
}

// Redacted returns the copy of the task a user with the given role may see.
// Internal notes never leave the team.
func (t Task) Redacted(role Role) Task {
	c := t.Clone()
	if role != RoleTeam {
		c.InternalNotes = ""
	}
	return c
}

// Bool returns a pointer to v
func Bool(v bool) *bool {
	return &v
}

var dueDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate checks that the task has the shape the board relies on
func (t *Task) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("task: missing id")
	case !t.Status.Valid():
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	case !t.Priority.Valid():
		return fmt.Errorf("task %s: unknown priority %q", t.ID, t.Priority)
	case t.Progress < 0 || t.Progress > 100:
		return fmt.Errorf("task %s: progress %d out of range", t.ID, t.Progress)
	case t.DueDate != "" && !dueDatePattern.MatchString(t.DueDate):
		return fmt.Errorf("task %s: due date %q is not YYYY-MM-DD", t.ID, t.DueDate)
	}
	for _, s := range t.Subtasks {
		if s.ID == "" {
			return fmt.Errorf("task %s: subtask without id", t.ID)
		}
	}
	for _, c := range t.Comments {
		if c.ID == "" || !c.Role.Valid() {
			return fmt.Errorf("task %s: malformed comment %q", t.ID, c.ID)
		}
	}
	return nil
}

// Validate checks that the chat message has the shape the board relies on
func (m *ChatMessage) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("chat: missing id")
	case !m.Role.Valid():
		return fmt.Errorf("chat %s: unknown role %q", m.ID, m.Role)
	}
	return nil
}
