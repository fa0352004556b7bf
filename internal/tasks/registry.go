package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
)

// Work runs when a scheduled task fires. Errors are logged and swallowed,
// a failed task never crashes the process.
type Work func(ctx context.Context) error

type task struct {
	runID  string
	cancel context.CancelFunc
}

// Registry keeps at most one pending task per string id. Scheduling a task
// under an id that already has a pending one cancels the old task first.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*task)}
}

// Schedule registers work to run after delay. The returned run id identifies
// this particular scheduling in logs.
func (r *Registry) Schedule(ctx context.Context, id string, delay time.Duration, work Work) string {
	runID := uuid.NewRandom().String()
	entry := log.WithField("context", "tasks").WithField("task", id).WithField("run", runID)

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{runID: runID, cancel: cancel}

	r.mu.Lock()
	if old, ok := r.tasks[id]; ok {
		old.cancel()
		entry.Debug("replacing pending task")
	}
	r.tasks[id] = t
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.evict(id, runID)
		defer cancel()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-taskCtx.Done():
			entry.Trace("task cancelled")
			return
		case <-timer.C:
		}

		if err := work(taskCtx); err != nil {
			entry.WithError(err).Error("task failed")
		}
	}()

	entry.WithField("delay", delay.String()).Debug("task scheduled")
	return runID
}

// Cancel stops the pending task registered under id, if any.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false
	}
	t.cancel()
	delete(r.tasks, id)
	return true
}

// Pending reports whether a task is currently registered under id.
func (r *Registry) Pending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// Cleanup cancels every pending task and waits for running ones to finish.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	for id, t := range r.tasks {
		t.cancel()
		delete(r.tasks, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// evict removes the registration only when it still belongs to this run,
// a replacement scheduled meanwhile must stay registered.
func (r *Registry) evict(id, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && t.runID == runID {
		delete(r.tasks, id)
	}
}
