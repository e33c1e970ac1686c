package session

import (
	"sync"
	"time"
)

// task is a restartable one-shot timer slot. Arming a task always cancels
// the previous timer first, so at most one timer per task kind is ever
// live (the cancel-before-replace rule from the concurrency model).
// Periodic behavior is built by having the callback re-arm its own task.
type task struct {
	mu      sync.Mutex
	clock   Clock
	timer   Timer
	running bool
}

func newTask(clock Clock) *task {
	return &task{clock: clock}
}

// arm schedules fn to run after d, replacing any pending timer.
func (t *task) arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.running = true
	t.timer = t.clock.AfterFunc(d, fn)
}

// stop cancels the pending timer, if any.
func (t *task) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.running = false
}

// isRunning reports whether the task currently has a timer armed.
func (t *task) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
