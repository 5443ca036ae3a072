package synchronizer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tgienger/clientboard/internal/gateway"
	"github.com/tgienger/clientboard/internal/models"
	"github.com/tgienger/clientboard/internal/notify"
)

// Report summarizes one reconciliation pass
type Report struct {
	Added    int
	Updated  int
	Deferred int // records held back by unacknowledged local writes
	Skipped  int // malformed records
}

type remoteTask struct {
	value    models.Task
	revision int64
}

type remoteChat struct {
	value    models.ChatMessage
	revision int64
}

// Poll re-reads both collections and merges them into the snapshot
func (s *Synchronizer) Poll(ctx context.Context) (Report, error) {
	s.mu.Lock()
	s.beginSyncLocked()
	s.mu.Unlock()
	s.emit()

	tasks, chat, skipped, err := s.fetch(ctx)

	s.mu.Lock()
	var report Report
	switch {
	case err == nil:
		report = s.mergeLocked(tasks, chat)
		report.Skipped = skipped
		s.skipped = skipped
		s.endSyncLocked(nil)
	case ctx.Err() != nil:
		// Cancelled polls are not sync failures.
		s.abortSyncLocked()
	default:
		s.endSyncLocked(err)
	}
	s.mu.Unlock()
	s.emit()

	if err != nil {
		s.log.Warn("poll failed", zap.Error(err))
		return Report{}, err
	}
	if report.Added+report.Updated+report.Skipped > 0 {
		s.log.Debug("reconciled",
			zap.Int("added", report.Added),
			zap.Int("updated", report.Updated),
			zap.Int("deferred", report.Deferred),
			zap.Int("skipped", report.Skipped))
	}
	return report, nil
}

// fetch reads and decodes both collections. Malformed records are counted
// and dropped.
func (s *Synchronizer) fetch(ctx context.Context) ([]remoteTask, []remoteChat, int, error) {
	var taskRecords, chatRecords []gateway.Record
	err := s.retry(ctx, func(ctx context.Context) error {
		var err error
		taskRecords, err = s.gw.ReadAll(ctx, gateway.CollectionTasks)
		return err
	})
	if err != nil {
		return nil, nil, 0, err
	}
	err = s.retry(ctx, func(ctx context.Context) error {
		var err error
		chatRecords, err = s.gw.ReadAll(ctx, gateway.CollectionChat)
		return err
	})
	if err != nil {
		return nil, nil, 0, err
	}

	skipped := 0
	tasks := make([]remoteTask, 0, len(taskRecords))
	for _, r := range taskRecords {
		t, err := models.DecodeTask(r.Data)
		if err == nil && t.ID != r.ID {
			err = errors.New("id does not match record key")
		}
		if err != nil {
			skipped++
			s.log.Warn("skipping record", zap.Error(malformed(gateway.CollectionTasks, r.ID, err)))
			continue
		}
		tasks = append(tasks, remoteTask{value: t, revision: r.Revision})
	}

	chat := make([]remoteChat, 0, len(chatRecords))
	for _, r := range chatRecords {
		m, err := models.DecodeChat(r.Data)
		if err == nil && m.ID != r.ID {
			err = errors.New("id does not match record key")
		}
		if err != nil {
			skipped++
			s.log.Warn("skipping record", zap.Error(malformed(gateway.CollectionChat, r.ID, err)))
			continue
		}
		chat = append(chat, remoteChat{value: m, revision: r.Revision})
	}
	return tasks, chat, skipped, nil
}

// mergeLocked applies remote state: unknown records are added, newer
// revisions replace local copies, records with local writes in flight are
// left alone. Records missing remotely are kept.
func (s *Synchronizer) mergeLocked(tasks []remoteTask, chat []remoteChat) Report {
	var report Report
	for _, r := range tasks {
		e, ok := s.tasks[r.value.ID]
		switch {
		case !ok:
			s.tasks[r.value.ID] = &taskEntry{value: r.value, revision: r.revision}
			report.Added++
		case e.pending > 0:
			report.Deferred++
		case r.revision > e.revision:
			e.value = r.value
			e.revision = r.revision
			report.Updated++
		}
	}
	for _, r := range chat {
		e, ok := s.chat[r.value.ID]
		switch {
		case !ok:
			s.chat[r.value.ID] = &chatEntry{value: r.value, revision: r.revision}
			report.Added++
		case e.pending > 0:
			report.Deferred++
		case r.revision > e.revision:
			e.value = r.value
			e.revision = r.revision
			report.Updated++
		}
		if r.value.Timestamp > s.lastChat {
			s.lastChat = r.value.Timestamp
		}
	}
	return report
}

// HandleChange reacts to a change signal from another instance by
// reconciling immediately. Signals this instance produced are ignored.
func (s *Synchronizer) HandleChange(ctx context.Context, c notify.Change) error {
	if c.Origin == s.id {
		return nil
	}
	s.log.Debug("external change",
		zap.String("collection", c.Collection),
		zap.String("id", c.ID),
		zap.Int64("revision", c.Revision),
		zap.String("origin", c.Origin))
	_, err := s.Poll(ctx)
	return err
}

// Run polls every interval and on external change signals until ctx is
// cancelled or the user logs out. Poll failures are reported through the
// snapshot status and do not stop the loop.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopPoll != nil {
		s.stopPoll()
	}
	s.stopPoll = cancel
	s.mu.Unlock()

	changes := make(chan notify.Change, 1)
	if s.bus != nil {
		unsubscribe := s.bus.Subscribe(func(c notify.Change) {
			if c.Origin == s.id {
				return
			}
			// A pending signal already guarantees a poll; coalesce the rest.
			select {
			case changes <- c:
			default:
			}
		})
		defer unsubscribe()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Poll(ctx)
		case c := <-changes:
			s.HandleChange(ctx, c)
		}
	}
}

// Stop cancels the polling loop started by Run
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	stop := s.stopPoll
	s.stopPoll = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}
