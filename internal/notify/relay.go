package notify

import (
	"fmt"
	"log/slog"

	"github.com/orbitworks/orbit/internal/events"
)

// Relay forwards job lifecycle events from the hub to a Notifier. Only
// terminal outcomes are forwarded; per-task and per-phase chatter stays on
// the event stream.
type Relay struct {
	hub      *events.Hub
	notifier Notifier
	logger   *slog.Logger

	ch   chan events.Event
	done chan struct{}
}

// NewRelay creates a relay; call Start to begin forwarding
func NewRelay(hub *events.Hub, notifier Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		hub:      hub,
		notifier: notifier,
		logger:   logger.With("component", "notify"),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the hub and forwards events until Stop is called
func (r *Relay) Start() {
	r.ch = r.hub.Subscribe(64)
	go func() {
		defer close(r.done)
		for ev := range r.ch {
			n, ok := translate(ev)
			if !ok {
				continue
			}
			if err := r.notifier.Send(n); err != nil {
				r.logger.Warn("notification failed", "type", ev.Type, "job_id", ev.JobID, "error", err)
			}
		}
	}()
}

// Stop unsubscribes from the hub and waits for in-flight sends
func (r *Relay) Stop() {
	r.hub.Unsubscribe(r.ch)
	<-r.done
}

func translate(ev events.Event) (Notification, bool) {
	var n Notification
	switch ev.Type {
	case events.JobCompleted:
		reason, _ := ev.Data["reason"].(string)
		n = Notification{
			Title:   "Job completed",
			Message: fmt.Sprintf("Job finished (%s).", reason),
			Type:    NotifySuccess,
		}
	case events.JobCancelled:
		n = Notification{
			Title:   "Job cancelled",
			Message: "Job was cancelled by the operator.",
			Type:    NotifyWarning,
		}
	case events.JobError:
		msg, _ := ev.Data["error"].(string)
		n = Notification{
			Title:   "Job failed",
			Message: msg,
			Type:    NotifyError,
		}
	default:
		return Notification{}, false
	}

	n.JobID = ev.JobID
	if repo, ok := ev.Data["repo"].(string); ok {
		n.Repo = repo
	}
	if branch, ok := ev.Data["branch"].(string); ok {
		n.Branch = branch
	}
	if cycles, ok := ev.Data["cycles"].(int); ok {
		n.Cycles = cycles
	}
	return n, true
}
