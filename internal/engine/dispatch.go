package engine

import "sync"

// Dispatcher runs I/O tasks off the loop goroutine.
//
// The engine hands every REST call, upload and socket send to the dispatcher.
// A task's completion is enqueued back onto the loop, so task code never
// touches engine state.
type Dispatcher interface {
	Dispatch(name string, run func())
}

// GoDispatcher runs each task on its own goroutine.
type GoDispatcher struct{}

// Dispatch starts run in a new goroutine.
func (GoDispatcher) Dispatch(_ string, run func()) {
	go run()
}

// ManualDispatcher queues tasks until the caller runs them. Tests and the
// scenario harness use it to decide exactly when each request completes.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualDispatcher struct {
	mu    sync.Mutex
	tasks []manualTask
}

type manualTask struct {
	name string
	run  func()
}

// NewManualDispatcher creates an empty dispatcher.
func NewManualDispatcher() *ManualDispatcher {
	return &ManualDispatcher{}
}

// Dispatch queues run under name.
func (d *ManualDispatcher) Dispatch(name string, run func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, manualTask{name: name, run: run})
}

// Pending returns the names of queued tasks, oldest first.
func (d *ManualDispatcher) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, len(d.tasks))
	for i, t := range d.tasks {
		names[i] = t.name
	}
	return names
}

// RunNext runs the oldest queued task. It reports whether a task ran.
func (d *ManualDispatcher) RunNext() bool {
	return d.run(func(manualTask) bool { return true })
}

// RunNamed runs the oldest queued task called name.
func (d *ManualDispatcher) RunNamed(name string) bool {
	return d.run(func(t manualTask) bool { return t.name == name })
}

// RunAll runs queued tasks until none are left, including tasks queued by
// tasks. It returns how many ran.
func (d *ManualDispatcher) RunAll() int {
	n := 0
	for d.RunNext() {
		n++
	}
	return n
}

func (d *ManualDispatcher) run(match func(manualTask) bool) bool {
	d.mu.Lock()
	idx := -1
	for i, t := range d.tasks {
		if match(t) {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return false
	}
	task := d.tasks[idx]
	d.tasks = append(d.tasks[:idx], d.tasks[idx+1:]...)
	d.mu.Unlock()

	task.run()
	return true
}
