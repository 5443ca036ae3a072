package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/policy"
)

// DefaultDueDays is how many calendar days out a new task's due date is set
const DefaultDueDays = 7

// RejectedProgress is the progress a task falls back to when the client
// requests changes
const RejectedProgress = 90

// Login sets the local identity and persists it to the session slot
func (s *Synchronizer) Login(ctx context.Context, role models.Role, name string) error {
	name = strings.TrimSpace(name)
	if !role.Valid() {
		return invalidf("unknown role %q", role)
	}
	if name == "" {
		return invalidf("name is required")
	}
	next := models.Session{Role: role, Name: name}
	data, err := models.EncodeSession(next)
	if err != nil {
		return err
	}

	unlock := s.records.lock(gateway.SessionSlot, "")
	defer unlock()

	s.mu.Lock()
	prev := s.session
	s.session = &next
	s.beginSyncLocked()
	s.mu.Unlock()
	s.emit()

	err = s.retry(ctx, func(ctx context.Context) error {
		return s.gw.WriteScalar(ctx, data)
	})

	s.mu.Lock()
	if err != nil {
		s.session = prev
	}
	s.endSyncLocked(err)
	s.mu.Unlock()
	s.emit()

	if err != nil {
		return err
	}
	s.log.Info("logged in", zap.String("role", string(role)), zap.String("name", name))
	return nil
}

// Logout clears the session slot, stops polling and returns the board to the
// unauthenticated state. Writes already in flight still complete.
func (s *Synchronizer) Logout(ctx context.Context) error {
	unlock := s.records.lock(gateway.SessionSlot, "")
	defer unlock()

	s.mu.Lock()
	prev := s.session
	s.session = nil
	s.beginSyncLocked()
	s.mu.Unlock()
	s.emit()

	err := s.retry(ctx, s.gw.ClearScalar)

	s.mu.Lock()
	if err != nil {
		s.session = prev
	}
	stop := s.stopPoll
	if err == nil {
		s.stopPoll = nil
	}
	s.endSyncLocked(err)
	s.mu.Unlock()
	s.emit()

	if err != nil {
		return err
	}
	if stop != nil {
		stop()
	}
	s.log.Info("logged out")
	return nil
}

// Restore loads a session persisted by an earlier run. It reports whether a
// session was found.
func (s *Synchronizer) Restore(ctx context.Context) (bool, error) {
	var data []byte
	err := s.retry(ctx, func(ctx context.Context) error {
		var err error
		data, err = s.gw.ReadScalar(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	sess, err := models.DecodeSession(data)
	if err != nil {
		s.log.Warn("ignoring stored session", zap.Error(err))
		return false, fmt.Errorf("%w: session: %v", ErrMalformedRecord, err)
	}

	s.mu.Lock()
	s.session = &sess
	s.version++
	s.mu.Unlock()
	s.emit()
	return true, nil
}

// AddTask creates a task in the first lane assigned to the current user
func (s *Synchronizer) AddTask(ctx context.Context, title, description string, priority models.Priority, projectName string) (models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Task{}, invalidf("title is required")
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Task{}, invalidf("unknown priority %q", priority)
	}

	s.mu.Lock()
	sess, err := s.authorizeLocked(policy.ActionCreateTask, nil)
	if err != nil {
		s.mu.Unlock()
		return models.Task{}, err
	}
	now := s.now()
	task := models.Task{
		ID:          models.NewID(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      models.StatusTodo,
		Priority:    priority,
		Assignee:    sess.Name,
		DueDate:     models.DueIn(now, DefaultDueDays),
		Progress:    0,
		ProjectName: strings.TrimSpace(projectName),
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}
	s.mu.Unlock()

	unlock := s.records.lock(gateway.CollectionTasks, task.ID)
	defer unlock()

	s.mu.Lock()
	entry := &taskEntry{value: task, pending: 1}
	s.tasks[task.ID] = entry
	s.beginSyncLocked()
	s.mu.Unlock()
	s.emit()

	rec, err := s.persistTask(ctx, task)

	s.mu.Lock()
	entry.pending--
	if err != nil {
		delete(s.tasks, task.ID)
	} else if rec.Revision > entry.revision {
		entry.revision = rec.Revision
	}
	s.endSyncLocked(err)
	s.mu.Unlock()
	s.emit()

	if err != nil {
		return models.Task{}, err
	}
	s.log.Info("task created", zap.String("task", task.ID), zap.String("title", task.Title))
	return task, nil
}

// SetStatus moves a task to another lane through the status selector.
// Setting Completed directly is the team's override: the task is finalized
// as approved without the client review.
func (s *Synchronizer) SetStatus(ctx context.Context, taskID string, status models.Status) error {
	return s.changeStatus(ctx, policy.ActionSetStatus, taskID, status)
}

// MoveTask is the drag-and-drop lane change
func (s *Synchronizer) MoveTask(ctx context.Context, taskID string, status models.Status) error {
	return s.changeStatus(ctx, policy.ActionMoveTask, taskID, status)
}

func (s *Synchronizer) changeStatus(ctx context.Context, action policy.Action, taskID string, status models.Status) error {
	if !status.Valid() {
		return invalidf("unknown status %q", status)
	}
	return s.mutateTask(ctx, action, taskID, func(_ models.Session, t *models.Task) error {
		t.Status = status
		switch status {
		case models.StatusCompleted:
			t.IsApproved = models.Bool(true)
			s.log.Info("team override: task finalized without client review", zap.String("task", t.ID))
		case models.StatusPendingApproval:
			// Resubmission after a rejection starts a fresh review.
			t.IsApproved = nil
		}
		return nil
	})
}

// ToggleSubtask flips a checklist item and recomputes progress
func (s *Synchronizer) ToggleSubtask(ctx context.Context, taskID, subtaskID string) error {
	return s.mutateTask(ctx, policy.ActionToggleSubtask, taskID, func(_ models.Session, t *models.Task) error {
		for i := range t.Subtasks {
			if t.Subtasks[i].ID == subtaskID {
				t.Subtasks[i].Completed = !t.Subtasks[i].Completed
				t.Progress = models.ComputeProgress(t.Subtasks)
				return nil
			}
		}
		return fmt.Errorf("%w: subtask %s on task %s", ErrNotFound, subtaskID, taskID)
	})
}

// AddSubtask appends a checklist item and recomputes progress
func (s *Synchronizer) AddSubtask(ctx context.Context, taskID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalidf("checklist item text is required")
	}
	return s.mutateTask(ctx, policy.ActionAddSubtask, taskID, func(_ models.Session, t *models.Task) error {
		t.Subtasks = append(t.Subtasks, models.Subtask{ID: models.NewID(), Text: text})
		t.Progress = models.ComputeProgress(t.Subtasks)
		return nil
	})
}

// AddComment appends a comment tagged with the author's role
func (s *Synchronizer) AddComment(ctx context.Context, taskID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalidf("comment text is required")
	}
	return s.mutateTask(ctx, policy.ActionAddComment, taskID, func(sess models.Session, t *models.Task) error {
		t.Comments = append(t.Comments, models.Comment{
			ID:        models.NewID(),
			Author:    sess.Name,
			Role:      sess.Role,
			Text:      text,
			Timestamp: s.nowMillis(),
		})
		return nil
	})
}

// Approve finalizes a task awaiting the client's review
func (s *Synchronizer) Approve(ctx context.Context, taskID string) error {
	return s.mutateTask(ctx, policy.ActionApprove, taskID, func(_ models.Session, t *models.Task) error {
		t.Status = models.StatusCompleted
		t.IsApproved = models.Bool(true)
		return nil
	})
}

// Reject sends a task under review back to the team
func (s *Synchronizer) Reject(ctx context.Context, taskID string) error {
	return s.mutateTask(ctx, policy.ActionReject, taskID, func(_ models.Session, t *models.Task) error {
		t.Status = models.StatusInProgress
		t.IsApproved = models.Bool(false)
		t.Progress = RejectedProgress
		return nil
	})
}

// UpdateNotes replaces the team-only internal notes
func (s *Synchronizer) UpdateNotes(ctx context.Context, taskID, notes string) error {
	return s.mutateTask(ctx, policy.ActionEditInternalNotes, taskID, func(_ models.Session, t *models.Task) error {
		t.InternalNotes = strings.TrimSpace(notes)
		return nil
	})
}

// EditTask changes a task's title and description
func (s *Synchronizer) EditTask(ctx context.Context, taskID, title, description string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalidf("title is required")
	}
	return s.mutateTask(ctx, policy.ActionEditTask, taskID, func(_ models.Session, t *models.Task) error {
		t.Title = title
		t.Description = strings.TrimSpace(description)
		return nil
	})
}

// SendChat posts a message to the board-wide channel
func (s *Synchronizer) SendChat(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, invalidf("message text is required")
	}

	s.mu.Lock()
	sess, err := s.authorizeLocked(policy.ActionSendChat, nil)
	if err != nil {
		s.mu.Unlock()
		return models.ChatMessage{}, err
	}
	ts := max(s.nowMillis(), s.lastChat+1)
	s.lastChat = ts
	msg := models.ChatMessage{
		ID:        models.NewID(),
		Author:    sess.Name,
		Role:      sess.Role,
		Text:      text,
		Timestamp: ts,
	}
	entry := &chatEntry{value: msg, pending: 1}
	s.chat[msg.ID] = entry
	s.beginSyncLocked()
	s.mu.Unlock()
	s.emit()

	data, err := models.EncodeChat(msg)
	var rec gateway.Record
	if err == nil {
		rec, err = s.write(ctx, gateway.CollectionChat, msg.ID, data)
	}

	s.mu.Lock()
	entry.pending--
	if err != nil {
		delete(s.chat, msg.ID)
	} else if rec.Revision > entry.revision {
		entry.revision = rec.Revision
	}
	s.endSyncLocked(err)
	s.mu.Unlock()
	s.emit()

	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// authorizeLocked checks the current session against the policy
func (s *Synchronizer) authorizeLocked(action policy.Action, task *models.Task) (models.Session, error) {
	if s.session == nil {
		return models.Session{}, ErrNotLoggedIn
	}
	sess := *s.session
	taskID := ""
	if task != nil {
		taskID = task.ID
	}
	if r := policy.Check(sess.Role, action, task); !r.Allowed() {
		return models.Session{}, s.denyLocked(sess.Role, action, taskID, r.Reason)
	}
	return sess, nil
}

// mutateTask runs the optimistic update cycle for an existing task:
// authorize, apply, persist, then acknowledge or roll back.
func (s *Synchronizer) mutateTask(ctx context.Context, action policy.Action, taskID string, apply func(models.Session, *models.Task) error) error {
	unlock := s.records.lock(gateway.CollectionTasks, taskID)
	defer unlock()

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	entry, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	sess, err := s.authorizeLocked(action, &entry.value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	before := entry.value.Clone()
	next := entry.value.Clone()
	if err := apply(sess, &next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.UpdatedAt = s.nowMillis()
	entry.value = next
	entry.pending++
	s.beginSyncLocked()
	s.mu.Unlock()
	s.emit()

	rec, err := s.persistTask(ctx, next)

	s.mu.Lock()
	entry.pending--
	if err != nil {
		entry.value = before
	} else if rec.Revision > entry.revision {
		entry.revision = rec.Revision
	}
	s.endSyncLocked(err)
	s.mu.Unlock()
	s.emit()

	if err != nil {
		s.log.Warn("rolled back task change",
			zap.Stringer("action", action),
			zap.String("task", taskID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *Synchronizer) persistTask(ctx context.Context, task models.Task) (gateway.Record, error) {
	data, err := models.EncodeTask(task)
	if err != nil {
		return gateway.Record{}, err
	}
	return s.write(ctx, gateway.CollectionTasks, task.ID, data)
}

// write persists one record. The write is detached from ctx cancellation so
// user-authored content is not lost when the view goes away.
func (s *Synchronizer) write(ctx context.Context, collection, id string, data []byte) (gateway.Record, error) {
	var rec gateway.Record
	err := s.retry(context.WithoutCancel(ctx), func(ctx context.Context) error {
		var err error
		rec, err = s.gw.Write(ctx, collection, id, data)
		return err
	})
	return rec, err
}

// retry runs op, retrying once immediately on failure. A second failure is
// reported as ErrPersistenceUnavailable.
func (s *Synchronizer) retry(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return unavailable(err)
	}
	s.log.Warn("gateway call failed, retrying", zap.Error(err))
	if err = op(ctx); err != nil {
		if errors.Is(err, ErrPersistenceUnavailable) {
			return err
		}
		return unavailable(err)
	}
	return nil
}
