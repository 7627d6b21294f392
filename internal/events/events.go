package events

import "time"

// Type identifies an orchestration event
type Type string

const (
	SessionStarted Type = "session_started"
	SessionEnded   Type = "session_ended"

	JobStarted   Type = "job_started"
	JobPaused    Type = "job_paused"
	JobResumed   Type = "job_resumed"
	JobCompleted Type = "job_completed"
	JobCancelled Type = "job_cancelled"
	JobError     Type = "job_error"

	CycleStarted   Type = "cycle_started"
	CyclePhase     Type = "cycle_phase"
	CycleCompleted Type = "cycle_completed"

	TasksDiscovered Type = "tasks_discovered"
	TaskStarted     Type = "task_started"
	TaskProgress    Type = "task_progress"
	TaskCompleted   Type = "task_completed"
	TaskFailed      Type = "task_failed"
)

// Event is a fire-and-forget progress notification. Delivery is best-effort;
// nothing in the pipeline may block on or fail because of an event.
type Event struct {
	Type  Type           `json:"type"`
	JobID string         `json:"job_id"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with the current time
func New(t Type, jobID string, data map[string]any) Event {
	return Event{Type: t, JobID: jobID, Time: time.Now().UTC(), Data: data}
}

// Broadcaster is the fan-out sink for orchestration progress events
type Broadcaster interface {
	// StartSession marks a job as having a live event stream
	StartSession(jobID string)
	// EndSession closes a job's event stream with a reason
	EndSession(jobID, reason string)
	// Publish fans an event out to all listeners; never blocks, never fails
	Publish(ev Event)
}

// Nop discards all events
type Nop struct{}

func (Nop) StartSession(string)       {}
func (Nop) EndSession(string, string) {}
func (Nop) Publish(Event)             {}
