// Package policy decides which board actions a role may perform.
//
// The decision is a pure function of (role, action, task). Anything not
// explicitly allowed is denied, including unknown roles and actions.
// An approved task is locked: no role may change its lane, checklist,
// notes or approval state.
package policy

import "github.com/tgienger/clientboard/internal/models"

// Action is a gated board operation
type Action int

const (
	ActionCreateTask Action = iota
	ActionEditTask
	ActionAddComment
	ActionSendChat
	ActionToggleSubtask
	ActionAddSubtask
	ActionViewInternalNotes
	ActionEditInternalNotes
	ActionSetStatus
	ActionMoveTask
	ActionApprove
	ActionReject
)

var actionNames = map[Action]string{
	ActionCreateTask:        "create-task",
	ActionEditTask:          "edit-task",
	ActionAddComment:        "add-comment",
	ActionSendChat:          "send-chat",
	ActionToggleSubtask:     "toggle-subtask",
	ActionAddSubtask:        "add-subtask",
	ActionViewInternalNotes: "view-internal-notes",
	ActionEditInternalNotes: "edit-internal-notes",
	ActionSetStatus:         "set-status",
	ActionMoveTask:          "move-task",
	ActionApprove:           "approve",
	ActionReject:            "reject",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Decision is the outcome of a check
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Reason explains a denial
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnknownRole
	ReasonUnknownAction
	ReasonWrongRole
	ReasonNoTask
	ReasonWrongLane
	ReasonLocked
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnknownRole:
		return "unknown role"
	case ReasonUnknownAction:
		return "unknown action"
	case ReasonWrongRole:
		return "role not permitted"
	case ReasonNoTask:
		return "action requires a task"
	case ReasonWrongLane:
		return "task is not awaiting approval"
	case ReasonLocked:
		return "task is approved and locked"
	default:
		return "unknown"
	}
}

// Result carries the decision and, for denials, the reason
type Result struct {
	Decision Decision
	Reason   Reason
}

// Allowed reports whether the result permits the action
func (r Result) Allowed() bool { return r.Decision == Allow }

func allow() Result             { return Result{Decision: Allow} }
func deny(reason Reason) Result { return Result{Decision: Deny, Reason: reason} }

// CanPerform reports whether role may perform action on task. task may be
// nil for actions that are not task-scoped.
func CanPerform(role models.Role, action Action, task *models.Task) bool {
	return Check(role, action, task).Allowed()
}

// Check evaluates the policy and explains the outcome
func Check(role models.Role, action Action, task *models.Task) Result {
	switch role {
	case models.RoleTeam:
		return checkTeam(action, task)
	case models.RoleClient:
		return checkClient(action, task)
	default:
		return deny(ReasonUnknownRole)
	}
}

func checkTeam(action Action, task *models.Task) Result {
	switch action {
	case ActionCreateTask, ActionSendChat:
		return allow()
	case ActionAddComment, ActionViewInternalNotes:
		if task == nil {
			return deny(ReasonNoTask)
		}
		return allow()
	case ActionEditTask, ActionToggleSubtask, ActionAddSubtask,
		ActionEditInternalNotes, ActionSetStatus, ActionMoveTask:
		return unlocked(task)
	case ActionApprove, ActionReject:
		// Team advances review tasks through the status selector instead.
		return deny(ReasonWrongRole)
	default:
		return deny(ReasonUnknownAction)
	}
}

func checkClient(action Action, task *models.Task) Result {
	switch action {
	case ActionCreateTask, ActionSendChat:
		return allow()
	case ActionAddComment:
		if task == nil {
			return deny(ReasonNoTask)
		}
		return allow()
	case ActionApprove, ActionReject:
		if r := unlocked(task); !r.Allowed() {
			return r
		}
		if task.Status != models.StatusPendingApproval {
			return deny(ReasonWrongLane)
		}
		return allow()
	case ActionEditTask, ActionToggleSubtask, ActionAddSubtask,
		ActionViewInternalNotes, ActionEditInternalNotes, ActionSetStatus, ActionMoveTask:
		return deny(ReasonWrongRole)
	default:
		return deny(ReasonUnknownAction)
	}
}

func unlocked(task *models.Task) Result {
	if task == nil {
		return deny(ReasonNoTask)
	}
	if task.Approved() {
		return deny(ReasonLocked)
	}
	return allow()
}
