// Package synchronizer owns the board state. Every intent from the view is
// authorized, applied optimistically to the in-memory snapshot, and then
// written through the gateway. A failed write is rolled back. External
// changes are merged by id with the gateway winning, except for records
// that still have an unacknowledged local write.
package synchronizer

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/notify"
	"github.com/tgienger/clientboard/internal/policy"
)

// SyncStatus tells the view whether the board is in step with the store
type SyncStatus int

const (
	StatusIdle SyncStatus = iota
	StatusSyncing
	StatusSynced
	StatusFailed
)

func (s SyncStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusFailed:
		return "sync failed"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only view of the board at one point in time
type Snapshot struct {
	Version   uint64
	Tasks     []models.Task
	Chat      []models.ChatMessage
	Session   *models.Session
	Stats     models.Stats
	Syncing   bool
	Status    SyncStatus
	Skipped   int // malformed records ignored by the last reconciliation
	LastError error
}

// Task returns the task with id from the snapshot
func (s Snapshot) Task(id string) (models.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

// Denial records one refused intent
type Denial struct {
	Action policy.Action
	Role   models.Role
	TaskID string
	Reason policy.Reason
	At     time.Time
}

// Options configures a Synchronizer
type Options struct {
	Logger     *zap.Logger
	Now        func() time.Time
	InstanceID string
}

type taskEntry struct {
	value    models.Task
	revision int64
	pending  int // local writes not yet acknowledged
}

type chatEntry struct {
	value    models.ChatMessage
	revision int64
	pending  int
}

// Synchronizer is one board instance. Several may share a gateway.
type Synchronizer struct {
	gw  *gateway.Gateway
	bus notify.Bus
	id  string
	now func() time.Time
	log *zap.Logger

	records keyedMutex

	mu        sync.Mutex
	tasks     map[string]*taskEntry
	chat      map[string]*chatEntry
	session   *models.Session
	inflight  int
	synced    bool
	lastErr   error
	skipped   int
	version   uint64
	lastChat  int64
	denials   []Denial
	listeners map[int]func(Snapshot)
	nextID    int
	stopPoll  context.CancelFunc
}

// New creates a synchronizer over gw. bus may be nil when the instance runs
// alone.
func New(gw *gateway.Gateway, bus notify.Bus, opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InstanceID == "" {
		opts.InstanceID = gw.Origin()
	}
	if opts.InstanceID == "" {
		opts.InstanceID = models.NewID()
	}
	if gw.Origin() != opts.InstanceID {
		gw = gw.WithOrigin(opts.InstanceID)
	}
	return &Synchronizer{
		gw:        gw,
		bus:       bus,
		id:        opts.InstanceID,
		now:       opts.Now,
		log:       opts.Logger.Named("sync").With(zap.String("instance", opts.InstanceID)),
		tasks:     make(map[string]*taskEntry),
		chat:      make(map[string]*chatEntry),
		listeners: make(map[int]func(Snapshot)),
	}
}

// ID returns the instance identifier used to tag change signals
func (s *Synchronizer) ID() string { return s.id }

// Subscribe registers fn to receive a snapshot after every accepted
// mutation and reconciliation
func (s *Synchronizer) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current board state
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Denials returns every intent refused so far
func (s *Synchronizer) Denials() []Denial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.denials)
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	role := models.RoleClient
	var session *models.Session
	if s.session != nil {
		sess := *s.session
		session = &sess
		role = sess.Role
	}

	tasks := make([]models.Task, 0, len(s.tasks))
	for _, e := range s.tasks {
		tasks = append(tasks, e.value.Redacted(role))
	}
	slices.SortFunc(tasks, func(a, b models.Task) int {
		if a.CreatedAt != b.CreatedAt {
			return cmp.Compare(a.CreatedAt, b.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})

	chat := make([]models.ChatMessage, 0, len(s.chat))
	for _, e := range s.chat {
		chat = append(chat, e.value)
	}
	slices.SortFunc(chat, func(a, b models.ChatMessage) int {
		if a.Timestamp != b.Timestamp {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		}
		return strings.Compare(a.ID, b.ID)
	})

	return Snapshot{
		Version:   s.version,
		Tasks:     tasks,
		Chat:      chat,
		Session:   session,
		Stats:     models.ComputeStats(tasks, s.now()),
		Syncing:   s.inflight > 0,
		Status:    s.statusLocked(),
		Skipped:   s.skipped,
		LastError: s.lastErr,
	}
}

func (s *Synchronizer) statusLocked() SyncStatus {
	switch {
	case s.inflight > 0:
		return StatusSyncing
	case s.lastErr != nil:
		return StatusFailed
	case s.synced:
		return StatusSynced
	default:
		return StatusIdle
	}
}

// beginSyncLocked marks a gateway call in flight
func (s *Synchronizer) beginSyncLocked() {
	s.inflight++
	s.version++
}

// endSyncLocked records the outcome of a gateway call
func (s *Synchronizer) endSyncLocked(err error) {
	s.inflight--
	s.version++
	if err != nil {
		s.lastErr = err
		return
	}
	s.lastErr = nil
	s.synced = true
}

// abortSyncLocked ends a gateway call without recording an outcome
func (s *Synchronizer) abortSyncLocked() {
	s.inflight--
	s.version++
}

// emit delivers the current snapshot to listeners
func (s *Synchronizer) emit() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// deny records a refused intent and returns the error reported to the caller
func (s *Synchronizer) denyLocked(role models.Role, action policy.Action, taskID string, reason policy.Reason) error {
	s.denials = append(s.denials, Denial{
		Action: action,
		Role:   role,
		TaskID: taskID,
		Reason: reason,
		At:     s.now(),
	})
	s.log.Info("intent denied",
		zap.Stringer("action", action),
		zap.String("role", string(role)),
		zap.String("task", taskID),
		zap.Stringer("reason", reason))
	return &DeniedError{Action: action, Role: role, TaskID: taskID, Reason: reason}
}

// Now returns the synchronizer's clock reading
func (s *Synchronizer) Now() time.Time { return s.now() }

func (s *Synchronizer) nowMillis() int64 {
	return s.now().UnixMilli()
}

// keyedMutex serializes local writes per record so a later intent is never
// persisted before an earlier one on the same record
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(collection, id string) func() {
	key := collection + "/" + id
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
