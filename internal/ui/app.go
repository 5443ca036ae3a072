package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/synchronizer"
	"github.com/tgienger/clientboard/internal/ui/views"
)

// Currently active view
type View int

const (
	ViewLogin View = iota
	ViewBoard
	ViewTask
	ViewChat
)

// snapshotMsg carries a snapshot pushed by the synchronizer
type snapshotMsg synchronizer.Snapshot

// Options configures the app
type Options struct {
	PollInterval time.Duration
	Logger       *zap.Logger
}

type App struct {
	ctx      context.Context
	sync     *synchronizer.Synchronizer
	interval time.Duration
	log      *zap.Logger

	updates     chan synchronizer.Snapshot
	unsubscribe func()
	polling     bool

	snap        synchronizer.Snapshot
	currentView View
	login       *views.LoginView
	board       *views.BoardView
	task        *views.TaskView
	chat        *views.ChatView
	width       int
	height      int
}

// NewApp creates a new application over sync
func NewApp(ctx context.Context, sync *synchronizer.Synchronizer, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}

	a := &App{
		ctx:      ctx,
		sync:     sync,
		interval: opts.PollInterval,
		log:      opts.Logger.Named("ui"),
		updates:  make(chan synchronizer.Snapshot, 1),
		snap:     sync.Snapshot(),
		login:    views.NewLoginView(ctx, sync),
		board:    views.NewBoardView(ctx, sync),
	}
	a.unsubscribe = sync.Subscribe(a.push)
	if a.snap.Session != nil {
		a.currentView = ViewBoard
	}
	return a
}

// push hands a snapshot to the UI loop. Only the newest pending snapshot is
// kept.
func (a *App) push(snap synchronizer.Snapshot) {
	for {
		select {
		case a.updates <- snap:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

func (a *App) waitForSnapshot() tea.Msg {
	select {
	case snap := <-a.updates:
		return snapshotMsg(snap)
	case <-a.ctx.Done():
		return nil
	}
}

// Close detaches the app from the synchronizer
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// Current returns the active view
func (a *App) Current() View { return a.currentView }

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.waitForSnapshot, a.login.Init()}
	if a.snap.Session != nil {
		a.startPolling()
	}
	return tea.Batch(cmds...)
}

// startPolling runs the synchronizer's polling loop until logout
func (a *App) startPolling() {
	if a.polling {
		return
	}
	a.polling = true
	go func() {
		if err := a.sync.Run(a.ctx, a.interval); err != nil && a.ctx.Err() == nil {
			a.log.Debug("polling stopped", zap.Error(err))
		}
	}()
}

func (a *App) resize() tea.Cmd {
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: a.width, Height: a.height}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Keep the persistent views sized even while hidden
		a.login.Update(msg)
		a.board.Update(msg)
		if a.task != nil {
			a.task.Update(msg)
		}
		if a.chat != nil {
			a.chat.Update(msg)
		}
		return a, nil

	case snapshotMsg:
		return a, tea.Batch(a.applySnapshot(synchronizer.Snapshot(msg)), a.waitForSnapshot)

	case views.IntentDone:
		if msg.Err != nil {
			a.log.Debug("intent failed", zap.String("intent", msg.Label), zap.Error(msg.Err))
		}
		if msg.Label == "login" && msg.Err == nil {
			a.startPolling()
		}

	case views.OpenTask:
		a.task = views.NewTaskView(a.ctx, a.sync, msg.ID)
		a.task.SetSnapshot(a.snap)
		a.currentView = ViewTask
		return a, tea.Batch(a.task.Init(), a.resize())

	case views.OpenChat:
		a.chat = views.NewChatView(a.ctx, a.sync)
		a.currentView = ViewChat
		return a, tea.Batch(a.chat.Init(), a.resize())

	case views.BackToBoard:
		a.currentView = ViewBoard
		a.task = nil
		a.chat = nil
		return a, nil
	}

	var cmd tea.Cmd
	switch a.currentView {
	case ViewLogin:
		_, cmd = a.login.Update(msg)
	case ViewBoard:
		_, cmd = a.board.Update(msg)
	case ViewTask:
		_, cmd = a.task.Update(msg)
	case ViewChat:
		_, cmd = a.chat.Update(msg)
	}
	return a, cmd
}

// applySnapshot routes a new snapshot to the views and follows session
// changes between the login form and the board
func (a *App) applySnapshot(snap synchronizer.Snapshot) tea.Cmd {
	if snap.Version < a.snap.Version {
		return nil
	}
	a.snap = snap
	a.board.SetSnapshot(snap)
	if a.task != nil {
		a.task.SetSnapshot(snap)
	}
	if a.chat != nil {
		a.chat.SetSnapshot(snap)
	}

	switch {
	case snap.Session == nil && a.currentView != ViewLogin:
		a.currentView = ViewLogin
		a.task = nil
		a.chat = nil
		a.polling = false
		return a.login.Init()
	case snap.Session != nil && a.currentView == ViewLogin:
		a.currentView = ViewBoard
	}
	return nil
}

func (a *App) View() string {
	switch a.currentView {
	case ViewBoard:
		return a.board.View()
	case ViewTask:
		if a.task != nil {
			return a.task.View()
		}
	case ViewChat:
		if a.chat != nil {
			return a.chat.View()
		}
	}
	return a.login.View()
}
