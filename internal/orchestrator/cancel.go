package orchestrator

import "sync"

// Cancel is a cooperative cancellation token. It is checked at phase and
// batch boundaries only; in-flight work always finishes before the signal
// is observed.
type Cancel struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancel creates an unset cancellation token
func NewCancel() *Cancel {
	return &Cancel{ch: make(chan struct{})}
}

// Signal requests cancellation. Safe to call more than once.
func (c *Cancel) Signal() {
	c.once.Do(func() { close(c.ch) })
}

// Requested reports whether cancellation has been signalled
func (c *Cancel) Requested() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when cancellation is signalled
func (c *Cancel) Done() <-chan struct{} {
	return c.ch
}
