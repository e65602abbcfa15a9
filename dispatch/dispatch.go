// Package dispatch keeps at most one in-flight unit of work per sender. A
// newer submission cancels the older one; cancellation is cooperative, so a
// cancelled unit must stop producing visible output at its next checkpoint
// but may still run cleanup.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Task is the handle for one scheduled unit of work. It is terminal once its
// work function has returned; the registry entry is removed at that point
// unless a newer handle has already replaced it.
type Task struct {
	id     string
	userID int64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *Task) ID() string { return t.id }

// Context is cancelled when the task is superseded or the dispatcher shuts
// down. Work must poll it around the backend call boundary.
func (t *Task) Context() context.Context { return t.ctx }

// Cancelled reports whether this unit has been asked to stop. A cancelled
// unit must not send a reply or mutate stats.
func (t *Task) Cancelled() bool { return t.ctx.Err() != nil }

// Done closes when the work function has returned, whatever the outcome.
func (t *Task) Done() <-chan struct{} { return t.done }

type Dispatcher struct {
	base   context.Context
	stop   context.CancelFunc
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[int64]*Task
	wg    sync.WaitGroup
}

func New(parent context.Context, logger *slog.Logger) *Dispatcher {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(parent)
	return &Dispatcher{
		base:   base,
		stop:   stop,
		logger: logger,
		tasks:  make(map[int64]*Task),
	}
}

// Submit cancels the sender's in-flight task, if any, registers a fresh
// handle, and schedules work on its own goroutine. Registration and
// supersession happen under one lock, so for every sender at most one
// non-terminal handle exists at any instant.
func (d *Dispatcher) Submit(userID int64, work func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(d.base)
	t := &Task{
		id:     uuid.NewString(),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	if prev, ok := d.tasks[userID]; ok {
		prev.cancel()
		d.logger.Info("task_superseded", "user_id", userID, "old_task", prev.id, "new_task", t.id)
	}
	d.tasks[userID] = t
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.finish(t)
		work(ctx)
	}()
	return t
}

// finish runs exactly once per task. The handle comparison keeps a stale
// completion from evicting a newer, still-running handle for the same
// sender.
func (d *Dispatcher) finish(t *Task) {
	cancelled := t.Cancelled()
	t.cancel()
	close(t.done)

	d.mu.Lock()
	if cur, ok := d.tasks[t.userID]; ok && cur == t {
		delete(d.tasks, t.userID)
	}
	d.mu.Unlock()

	if cancelled {
		d.logger.Info("task_cancelled", "user_id", t.userID, "task", t.id)
	} else {
		d.logger.Debug("task_finished", "user_id", t.userID, "task", t.id)
	}
}

// Active counts senders with a non-terminal task.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Cancel stops the sender's in-flight task without replacing it. Reports
// whether a task was found.
func (d *Dispatcher) Cancel(userID int64) bool {
	d.mu.Lock()
	t, ok := d.tasks[userID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Shutdown cancels every in-flight task and waits for their goroutines to
// drain, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stop()
	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
