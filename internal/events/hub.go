package events

import (
	"log/slog"
	"sync"
)

// Hub fans events out to subscriber channels. Slow subscribers are skipped
// rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	sessions    map[string]struct{}
	logger      *slog.Logger
}

// NewHub creates an event hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		sessions:    make(map[string]struct{}),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a new listener channel with the given buffer size
func (h *Hub) Subscribe(buffer int) chan Event {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener channel
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// StartSession marks a job as having a live event stream
func (h *Hub) StartSession(jobID string) {
	h.mu.Lock()
	h.sessions[jobID] = struct{}{}
	h.mu.Unlock()
	h.Publish(New(SessionStarted, jobID, nil))
}

// EndSession closes a job's event stream
func (h *Hub) EndSession(jobID, reason string) {
	h.mu.Lock()
	delete(h.sessions, jobID)
	h.mu.Unlock()
	h.Publish(New(SessionEnded, jobID, map[string]any{"reason": reason}))
}

// ActiveSessions returns the job ids with live streams
func (h *Hub) ActiveSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Publish delivers an event to all subscribers without blocking
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber", "type", ev.Type, "job_id", ev.JobID)
		}
	}
}
