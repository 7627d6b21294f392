package domain

import (
	"strings"
	"time"
)

// Job is one long-running orchestration run targeting a repository branch.
type Job struct {
	ID      string
	OwnerID string

	RepoOwner     string
	RepoName      string
	BaseBranch    string
	WorkingBranch string
	SessionPath   string

	// RequestDocument is the goal, immutable after creation. TaskList is the
	// mutable plan text, rewritten by every cycle's update phase.
	RequestDocument string
	TaskList        string

	Status           JobStatus
	Provider         string
	CurrentCycle     int // completed cycles, starts at 0
	MaxCycles        int // 0 = unlimited
	TimeLimitMinutes int // 0 = unlimited, measured from StartedAt
	MaxParallelTasks int

	LastError  string
	ErrorCount int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SessionPathFor derives the unique workspace path for a job target. The
// branch segment has slashes translated so the path stays three segments.
func SessionPathFor(repoOwner, repoName, workingBranch string) string {
	branch := strings.ReplaceAll(workingBranch, "/", "-")
	return repoOwner + "/" + repoName + "/" + branch
}

// Cycle is one discovery→execution→convergence→update pass within a job.
type Cycle struct {
	ID          string
	JobID       string
	CycleNumber int // 1-based, strictly increasing per job
	Phase       CyclePhase

	TasksDiscovered int
	TasksLaunched   int
	TasksCompleted  int
	TasksFailed     int

	Summary string

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Task is one unit of work discovered within a cycle.
type Task struct {
	ID         string
	CycleID    string
	JobID      string
	TaskNumber int // 1-based within the cycle

	Description    string
	Context        string
	Priority       Priority
	CanRunParallel bool

	Status        TaskStatus
	ResultSummary string
	ErrorMessage  string
	RetryCount    int

	StartedAt   *time.Time
	CompletedAt *time.Time
}
