package domain

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobError     JobStatus = "error"
)

// IsTerminal reports whether the status ends the job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobError
}

// CyclePhase records the last phase a cycle reached
type CyclePhase string

const (
	PhaseDiscovery   CyclePhase = "discovery"
	PhaseExecution   CyclePhase = "execution"
	PhaseConvergence CyclePhase = "convergence"
	PhaseUpdate      CyclePhase = "update"
	PhaseCompleted   CyclePhase = "completed"
)

// TaskStatus represents the execution state of a task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TerminationReason explains why a job stopped looping
type TerminationReason string

const (
	ReasonMaxCycles   TerminationReason = "max_cycles_reached"
	ReasonTimeLimit   TerminationReason = "time_limit_reached"
	ReasonAllComplete TerminationReason = "all_tasks_complete"
)

// Priority represents task priority
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = ""
	PriorityLow    Priority = "low"
)
