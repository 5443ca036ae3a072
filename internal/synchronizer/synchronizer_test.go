package synchronizer

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tgienger/clientboard/internal/db"
	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/notify"
	"github.com/tgienger/clientboard/internal/policy"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testBoard struct {
	gw  *gateway.Gateway
	bus *notify.LocalBus
}

func newTestBoard(t *testing.T) *testBoard {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	bus := notify.NewLocalBus()
	return &testBoard{gw: gateway.New(store, bus, gateway.Options{}), bus: bus}
}

func (b *testBoard) instance(t *testing.T, id string) *Synchronizer {
	t.Helper()
	return New(b.gw, b.bus, Options{InstanceID: id, Now: func() time.Time { return testNow }})
}

func login(t *testing.T, s *Synchronizer, role models.Role, name string) {
	t.Helper()
	if err := s.Login(context.Background(), role, name); err != nil {
		t.Fatalf("login %s: %v", role, err)
	}
}

func mustTask(t *testing.T, s *Synchronizer, id string) models.Task {
	t.Helper()
	task, ok := s.Snapshot().Task(id)
	if !ok {
		t.Fatalf("task %s not in snapshot", id)
	}
	return task
}

// addReviewTask creates a task as Team and moves it to the review lane
func addReviewTask(t *testing.T, s *Synchronizer) models.Task {
	t.Helper()
	ctx := context.Background()
	task, err := s.AddTask(ctx, "Hero animation", "", models.PriorityMedium, "Rebrand")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := s.SetStatus(ctx, task.ID, models.StatusPendingApproval); err != nil {
		t.Fatalf("set status: %v", err)
	}
	return mustTask(t, s, task.ID)
}

func TestAddTask_AsTeam(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	login(t, s, models.RoleTeam, "Alex Morgan")

	task, err := s.AddTask(context.Background(), "X", "", models.PriorityHigh, "P")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task.Status != models.StatusTodo || task.Progress != 0 {
		t.Fatalf("unexpected initial state: %+v", task)
	}
	if task.Assignee != "Alex Morgan" {
		t.Fatalf("assignee = %q", task.Assignee)
	}
	if task.DueDate != "2026-03-17" {
		t.Fatalf("due date = %q, want 2026-03-17", task.DueDate)
	}
	if task.ProjectName != "P" || task.Priority != models.PriorityHigh {
		t.Fatalf("unexpected task: %+v", task)
	}

	records, err := board.gw.ReadAll(context.Background(), gateway.CollectionTasks)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].ID != task.ID {
		t.Fatalf("task not persisted: %+v", records)
	}
	snap := s.Snapshot()
	if snap.Status != StatusSynced || snap.Syncing {
		t.Fatalf("expected synced snapshot, got %s syncing=%v", snap.Status, snap.Syncing)
	}
}

func TestAddTask_Validation(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()

	if _, err := s.AddTask(ctx, "X", "", models.PriorityLow, ""); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	login(t, s, models.RoleTeam, "Alex")
	if _, err := s.AddTask(ctx, "  ", "", models.PriorityLow, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty title, got %v", err)
	}
	if _, err := s.AddTask(ctx, "X", "", "Urgent", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad priority, got %v", err)
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Fatalf("rejected intents changed state: %d tasks", n)
	}
}

func TestToggleSubtask_ClientDenied(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")

	task, err := s.AddTask(ctx, "Checklist", "", models.PriorityLow, "")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := s.AddSubtask(ctx, task.ID, "first"); err != nil {
		t.Fatalf("add subtask: %v", err)
	}
	before := mustTask(t, s, task.ID)
	recordsBefore, _ := board.gw.ReadAll(ctx, gateway.CollectionTasks)

	login(t, s, models.RoleClient, "Sarah")
	err = s.ToggleSubtask(ctx, task.ID, before.Subtasks[0].ID)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != policy.ReasonWrongRole {
		t.Fatalf("expected wrong-role denial, got %#v", err)
	}

	after := mustTask(t, s, task.ID)
	if after.Subtasks[0].Completed != before.Subtasks[0].Completed || after.Progress != before.Progress {
		t.Fatalf("denied toggle changed state: %+v", after)
	}
	recordsAfter, _ := board.gw.ReadAll(ctx, gateway.CollectionTasks)
	if recordsAfter[0].Revision != recordsBefore[0].Revision {
		t.Fatalf("denied toggle reached the gateway")
	}

	denials := s.Denials()
	if len(denials) != 1 || denials[0].Action != policy.ActionToggleSubtask || denials[0].Role != models.RoleClient {
		t.Fatalf("denial not recorded: %+v", denials)
	}
}

func TestToggleSubtask_RecomputesProgress(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")

	task, _ := s.AddTask(ctx, "Checklist", "", models.PriorityLow, "")
	for _, text := range []string{"a", "b", "c"} {
		if err := s.AddSubtask(ctx, task.ID, text); err != nil {
			t.Fatalf("add subtask: %v", err)
		}
	}
	current := mustTask(t, s, task.ID)
	if err := s.ToggleSubtask(ctx, task.ID, current.Subtasks[1].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got := mustTask(t, s, task.ID).Progress; got != 33 {
		t.Fatalf("progress = %d, want 33", got)
	}
	if err := s.ToggleSubtask(ctx, task.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatus_RollbackOnWriteFailure(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")

	task, err := s.AddTask(ctx, "Fragile", "", models.PriorityLow, "")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	// Initial attempt and the immediate retry both fail.
	board.gw.FailNext(gateway.CollectionTasks, 2)
	err = s.SetStatus(ctx, task.ID, models.StatusInProgress)
	if !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected gateway cause to be preserved, got %v", err)
	}
	if got := mustTask(t, s, task.ID).Status; got != models.StatusTodo {
		t.Fatalf("status = %q, want rollback to %q", got, models.StatusTodo)
	}
	snap := s.Snapshot()
	if snap.Status != StatusFailed || snap.LastError == nil {
		t.Fatalf("expected failed sync status, got %s", snap.Status)
	}

	// A single failure is absorbed by the retry.
	board.gw.FailNext(gateway.CollectionTasks, 1)
	if err := s.SetStatus(ctx, task.ID, models.StatusInProgress); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := mustTask(t, s, task.ID).Status; got != models.StatusInProgress {
		t.Fatalf("status = %q", got)
	}
	if st := s.Snapshot().Status; st != StatusSynced {
		t.Fatalf("expected status to recover, got %s", st)
	}
}

func TestAddTask_RollbackRemovesTask(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	login(t, s, models.RoleTeam, "Alex")

	board.gw.SetUnavailable(gateway.CollectionTasks, true)
	if _, err := s.AddTask(context.Background(), "Lost", "", models.PriorityLow, ""); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Fatalf("failed create left %d tasks", n)
	}
}

func TestApprovalFlow_Approve(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")
	task := addReviewTask(t, s)

	if err := s.Approve(ctx, task.ID); !errors.Is(err, ErrDenied) {
		t.Fatalf("team approve: expected ErrDenied, got %v", err)
	}

	login(t, s, models.RoleClient, "Sarah")
	if err := s.Approve(ctx, task.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got := mustTask(t, s, task.ID)
	if got.Status != models.StatusCompleted || !got.Approved() {
		t.Fatalf("expected completed and approved, got %+v", got)
	}

	// Approved tasks are locked for everyone.
	login(t, s, models.RoleTeam, "Alex")
	err := s.SetStatus(ctx, task.ID, models.StatusInProgress)
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != policy.ReasonLocked {
		t.Fatalf("expected locked denial, got %v", err)
	}
	if err := s.AddComment(ctx, task.ID, "Shipped"); err != nil {
		t.Fatalf("comments stay open: %v", err)
	}
}

func TestApprovalFlow_Reject(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")
	task := addReviewTask(t, s)

	login(t, s, models.RoleClient, "Sarah")
	if err := s.Reject(ctx, task.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got := mustTask(t, s, task.ID)
	if got.Status != models.StatusInProgress || got.IsApproved == nil || *got.IsApproved || got.Progress != 90 {
		t.Fatalf("expected in progress, rejected, 90%%, got %+v", got)
	}

	// No automatic resubmission: the client cannot approve until the team
	// moves the task back to review.
	if err := s.Approve(ctx, task.ID); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied outside the review lane, got %v", err)
	}

	login(t, s, models.RoleTeam, "Alex")
	if err := s.SetStatus(ctx, task.ID, models.StatusPendingApproval); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if got := mustTask(t, s, task.ID); got.IsApproved != nil {
		t.Fatalf("resubmission should reset approval, got %v", *got.IsApproved)
	}
}

func TestSetStatus_TeamCompleteOverride(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")

	task, _ := s.AddTask(ctx, "Quick fix", "", models.PriorityLow, "")
	if err := s.MoveTask(ctx, task.ID, models.StatusCompleted); err != nil {
		t.Fatalf("move: %v", err)
	}
	got := mustTask(t, s, task.ID)
	if got.Status != models.StatusCompleted || !got.Approved() {
		t.Fatalf("expected override to finalize task, got %+v", got)
	}
}

func TestSetStatus_ClientDenied(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")
	task, _ := s.AddTask(ctx, "Mine", "", models.PriorityLow, "")

	login(t, s, models.RoleClient, "Sarah")
	for _, err := range []error{
		s.SetStatus(ctx, task.ID, models.StatusInProgress),
		s.MoveTask(ctx, task.ID, models.StatusInProgress),
		s.UpdateNotes(ctx, task.ID, "peek"),
		s.EditTask(ctx, task.ID, "Renamed", ""),
		s.AddSubtask(ctx, task.ID, "extra"),
	} {
		if !errors.Is(err, ErrDenied) {
			t.Fatalf("expected ErrDenied, got %v", err)
		}
	}
	if got := mustTask(t, s, task.ID); got.Status != models.StatusTodo || got.Title != "Mine" {
		t.Fatalf("denied intents changed the task: %+v", got)
	}
	if n := len(s.Denials()); n != 5 {
		t.Fatalf("expected 5 recorded denials, got %d", n)
	}
}

func TestSnapshot_RedactsInternalNotesForClient(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")
	task, _ := s.AddTask(ctx, "Secret", "", models.PriorityLow, "")
	if err := s.UpdateNotes(ctx, task.ID, "budget is tight"); err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if got := mustTask(t, s, task.ID).InternalNotes; got != "budget is tight" {
		t.Fatalf("team should see notes, got %q", got)
	}

	var last Snapshot
	s.Subscribe(func(snap Snapshot) { last = snap })
	login(t, s, models.RoleClient, "Sarah")

	for _, snap := range []Snapshot{s.Snapshot(), last} {
		got, ok := snap.Task(task.ID)
		if !ok {
			t.Fatalf("task missing from snapshot")
		}
		if got.InternalNotes != "" {
			t.Fatalf("client snapshot leaked internal notes")
		}
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if got := mustTask(t, s, task.ID).InternalNotes; got != "" {
		t.Fatalf("anonymous snapshot leaked internal notes")
	}
}

func TestComments_TaggedWithRole(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")
	task, _ := s.AddTask(ctx, "Talk", "", models.PriorityLow, "")
	if err := s.AddComment(ctx, task.ID, "Almost there"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	login(t, s, models.RoleClient, "Sarah")
	if err := s.AddComment(ctx, task.ID, "Great"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if err := s.AddComment(ctx, task.ID, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	comments := mustTask(t, s, task.ID).Comments
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].Role != models.RoleTeam || comments[0].Author != "Alex" {
		t.Fatalf("unexpected first comment: %+v", comments[0])
	}
	if comments[1].Role != models.RoleClient || comments[1].Author != "Sarah" {
		t.Fatalf("unexpected second comment: %+v", comments[1])
	}
}

func TestSendChat_MonotonicTimestamps(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleClient, "Sarah")

	first, err := s.SendChat(ctx, "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	second, err := s.SendChat(ctx, "again")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if second.Timestamp <= first.Timestamp {
		t.Fatalf("timestamps not monotonic: %d then %d", first.Timestamp, second.Timestamp)
	}
	chat := s.Snapshot().Chat
	if len(chat) != 2 || chat[0].ID != first.ID || chat[1].ID != second.ID {
		t.Fatalf("unexpected chat order: %+v", chat)
	}
	if chat[0].Role != models.RoleClient {
		t.Fatalf("chat not tagged with role: %+v", chat[0])
	}

	board.gw.SetUnavailable(gateway.CollectionChat, true)
	if _, err := s.SendChat(ctx, "lost"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if n := len(s.Snapshot().Chat); n != 2 {
		t.Fatalf("failed send left %d messages", n)
	}
}

func TestLoginLogoutRestore(t *testing.T) {
	board := newTestBoard(t)
	a := board.instance(t, "tab-a")
	ctx := context.Background()

	if err := a.Login(ctx, "Admin", "root"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}
	if err := a.Login(ctx, models.RoleTeam, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	login(t, a, models.RoleTeam, "Alex")

	reloaded := board.instance(t, "tab-a-reloaded")
	found, err := reloaded.Restore(ctx)
	if err != nil || !found {
		t.Fatalf("restore: found=%v err=%v", found, err)
	}
	if sess := reloaded.Snapshot().Session; sess == nil || sess.Name != "Alex" || sess.Role != models.RoleTeam {
		t.Fatalf("unexpected restored session: %+v", sess)
	}

	if err := a.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if a.Snapshot().Session != nil {
		t.Fatalf("session survived logout")
	}
	fresh := board.instance(t, "tab-c")
	if found, err := fresh.Restore(ctx); err != nil || found {
		t.Fatalf("expected no session after logout: found=%v err=%v", found, err)
	}
}

func TestLogin_RollbackOnFailure(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	login(t, s, models.RoleTeam, "Alex")

	board.gw.SetUnavailable(gateway.SessionSlot, true)
	if err := s.Login(context.Background(), models.RoleClient, "Sarah"); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if sess := s.Snapshot().Session; sess == nil || sess.Name != "Alex" {
		t.Fatalf("expected session rollback, got %+v", sess)
	}
}

func TestSnapshot_Stats(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()
	login(t, s, models.RoleTeam, "Alex")

	var ids []string
	for _, title := range []string{"a", "b", "c", "d"} {
		task, err := s.AddTask(ctx, title, "", models.PriorityLow, "")
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		ids = append(ids, task.ID)
	}
	if err := s.SetStatus(ctx, ids[0], models.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stats := s.Snapshot().Stats
	if stats.Total != 4 || stats.Completed != 1 || stats.ProgressPercent != 25 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubscribe_EmitsAfterMutation(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	login(t, s, models.RoleTeam, "Alex")

	var seen []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })
	if _, err := s.AddTask(context.Background(), "Watch me", "", models.PriorityLow, ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	cancel()

	if len(seen) < 2 {
		t.Fatalf("expected optimistic and acknowledged snapshots, got %d", len(seen))
	}
	if !seen[0].Syncing || len(seen[0].Tasks) != 1 {
		t.Fatalf("first snapshot should show the optimistic task while syncing: %+v", seen[0])
	}
	final := seen[len(seen)-1]
	if final.Syncing || final.Status != StatusSynced {
		t.Fatalf("final snapshot should be synced: %+v", final)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Version <= seen[i-1].Version {
			t.Fatalf("snapshot versions not increasing")
		}
	}

	before := len(seen)
	s.SendChat(context.Background(), "after cancel")
	if len(seen) != before {
		t.Fatalf("cancelled subscriber still receives snapshots")
	}
}

func TestSeed_OnlyWhenEmpty(t *testing.T) {
	board := newTestBoard(t)
	s := board.instance(t, "tab-a")
	ctx := context.Background()

	n, err := s.Seed(ctx)
	if err != nil || n != 4 {
		t.Fatalf("seed: n=%d err=%v", n, err)
	}
	if got := len(s.Snapshot().Tasks); got != 4 {
		t.Fatalf("expected 4 tasks after seeding, got %d", got)
	}
	n, err = s.Seed(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second seed: n=%d err=%v", n, err)
	}
	review := 0
	for _, task := range s.Snapshot().Tasks {
		if err := task.Validate(); err != nil {
			t.Fatalf("seeded task invalid: %v", err)
		}
		if task.Status == models.StatusPendingApproval {
			review++
		}
	}
	if review != 1 {
		t.Fatalf("expected one task awaiting review, got %d", review)
	}
	if !reflect.DeepEqual(s.Snapshot().Stats, models.Stats{Total: 4, ProgressPercent: 0, Overdue: 1}) {
		t.Fatalf("unexpected seeded stats: %+v", s.Snapshot().Stats)
	}
}

func TestSeed_ConcurrentInstancesWriteOneBoard(t *testing.T) {
	board := newTestBoard(t)
	a := board.instance(t, "tab-a")
	b := board.instance(t, "tab-b")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, inst := range []*Synchronizer{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := inst.Seed(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if _, err := a.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	tasks := a.Snapshot().Tasks
	if len(tasks) != 4 {
		t.Fatalf("expected 4 demo tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if !strings.HasPrefix(task.ID, "demo-") {
			t.Fatalf("unexpected task id %q", task.ID)
		}
	}
	if n, err := board.gw.Count(ctx, gateway.CollectionTasks); err != nil || n != 4 {
		t.Fatalf("stored tasks = %d, %v", n, err)
	}
}
