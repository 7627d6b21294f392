package orchestrator

import "sync"

// Runner is the in-memory handle for one active job loop
type Runner struct {
	cancel *Cancel
	done   chan struct{}
}

// Cancel returns the runner's cancellation token
func (r *Runner) Cancel() *Cancel {
	return r.cancel
}

// Wait blocks until the runner's loop has exited
func (r *Runner) Wait() {
	<-r.done
}

// Registry tracks the single active runner per job id. It is the source of
// truth for "is this job actively running" within this process; it is not
// shared across processes, so jobs left running in the store after a crash
// are stale until an operator (or the janitor) intervenes.
type Registry struct {
	mu      sync.Mutex
	runners map[string]*Runner
}

// NewRegistry creates an empty runner registry
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]*Runner)}
}

// Register atomically claims the runner slot for a job. Returns
// ErrAlreadyRunning if a runner is already registered.
func (r *Registry) Register(jobID string) (*Runner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[jobID]; exists {
		return nil, ErrAlreadyRunning
	}
	rn := &Runner{cancel: NewCancel(), done: make(chan struct{})}
	r.runners[jobID] = rn
	return rn, nil
}

// Get returns the active runner for a job, if any
func (r *Registry) Get(jobID string) (*Runner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.runners[jobID]
	return rn, ok
}

// IsActive reports whether a job has an active runner
func (r *Registry) IsActive(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runners[jobID]
	return ok
}

// Unregister releases a job's runner slot
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runners, jobID)
}

// ActiveCount returns the number of registered runners
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runners)
}
