package registry

import "github.com/hostpulse/agent/pkg/types"

// WorkerHandle is the registry's view of a running worker goroutine: a
// channel closed when the goroutine returns, so DELETE and shutdown can
// "join" it the way the C code pthread_joins a worker thread.
type WorkerHandle struct {
	Done chan struct{}
}

// NewWorkerHandle returns a handle with an open Done channel.
func NewWorkerHandle() *WorkerHandle {
	return &WorkerHandle{Done: make(chan struct{})}
}

// Join blocks until the worker goroutine owning this handle has returned.
func (h *WorkerHandle) Join() {
	<-h.Done
}

// Registry is the three-parallel-map task registry from §4.4: threads,
// controls, and children, each independently lockable, with the invariant
// that threads and controls share a key set at every well-defined
// observation point (enforced by always mutating both together in
// AddTask/RemoveTask rather than by a single combined lock).
type Registry struct {
	Threads  *Map[*WorkerHandle]
	Controls *Map[*ThreadControl]
	Children *Map[int] // child PID, present only for live keep-alive children
}

// New returns an empty, unfrozen Registry.
func New() *Registry {
	return &Registry{
		Threads:  NewMap[*WorkerHandle](),
		Controls: NewMap[*ThreadControl](),
		Children: NewMap[int](),
	}
}

// AddTask admits a new task's worker handle and control record atomically
// with respect to the threads/controls invariant: if either Put fails (most
// commonly ErrFrozen during a shutdown race, or ErrExists on a duplicate
// id), the other map is rolled back so the two never diverge.
func (r *Registry) AddTask(id types.TaskID, h *WorkerHandle, c *ThreadControl) error {
	if err := r.Threads.Put(id, h); err != nil {
		return err
	}
	if err := r.Controls.Put(id, c); err != nil {
		r.Threads.Drop(id)
		return err
	}
	return nil
}

// RemoveTask drops id from all three maps. Safe to call even if children
// has no entry for id.
func (r *Registry) RemoveTask(id types.TaskID) {
	r.Threads.Drop(id)
	r.Controls.Drop(id)
	r.Children.Drop(id)
}

// Freeze freezes all three maps, the registry-wide shutdown signal: after
// this call no new task is admitted anywhere in the registry.
func (r *Registry) Freeze() {
	r.Threads.Freeze()
	r.Controls.Freeze()
	r.Children.Freeze()
}
