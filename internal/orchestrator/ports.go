package orchestrator

import (
	"context"
	"time"

	"github.com/orbitworks/orbit/internal/domain"
)

// Store is the durable persistence contract the orchestrator depends on.
// Implemented by jobstore.Store.
type Store interface {
	InsertJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]*domain.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error
	MarkJobStarted(ctx context.Context, id string, at time.Time) error
	MarkJobCompleted(ctx context.Context, id string, status domain.JobStatus, at time.Time) error
	UpdateJobCycle(ctx context.Context, id string, currentCycle int) error
	RecordJobError(ctx context.Context, id string, msg string) error
	UpdateJobRequestDocument(ctx context.Context, id, doc string) error
	UpdateJobTaskList(ctx context.Context, id, taskList string) error

	InsertCycle(ctx context.Context, c *domain.Cycle) error
	GetCycle(ctx context.Context, id string) (*domain.Cycle, error)
	GetCycleByNumber(ctx context.Context, jobID string, number int) (*domain.Cycle, error)
	ListCycles(ctx context.Context, jobID string) ([]*domain.Cycle, error)
	UpdateCyclePhase(ctx context.Context, id string, phase domain.CyclePhase) error
	UpdateCycleCounters(ctx context.Context, id string, discovered, launched int) error
	UpdateCycleCounts(ctx context.Context, id string, completed, failed int) error
	UpdateCycleSummary(ctx context.Context, id, summary string) error
	MarkCycleCompleted(ctx context.Context, id string, at time.Time) error

	InsertTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, cycleID string) ([]*domain.Task, error)
	MarkTaskRunning(ctx context.Context, id string, at time.Time) error
	MarkTaskCompleted(ctx context.Context, id, resultSummary string, at time.Time) error
	MarkTaskFailed(ctx context.Context, id, errorMessage string, at time.Time) error
}

// DiscoveryContext carries everything a Discoverer needs to propose tasks.
// FileTree, GitStatus and RecentCommits are populated by hosts that have
// repository access; discoverers must tolerate them being empty.
type DiscoveryContext struct {
	RequestDocument string
	TaskList        string
	RepoOwner       string
	RepoName        string
	BaseBranch      string
	WorkingBranch   string
	CycleNumber     int
	PreviousSummary string

	FileTree      string
	GitStatus     string
	RecentCommits string
}

// TaskSpec is one candidate task proposed by a Discoverer
type TaskSpec struct {
	Description string
	Context     string
	Priority    domain.Priority
	Parallel    bool
}

// Discoverer proposes the tasks for one cycle. A failure is fatal for the
// job's current loop iteration.
type Discoverer interface {
	Discover(ctx context.Context, dc DiscoveryContext) ([]TaskSpec, error)
}

// Executor performs the work for one task. An error marks the task failed;
// it never aborts the batch or the cycle.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job, task *domain.Task) (resultSummary string, err error)
}

// TaskOutcome is the settled result of one task, fed to the Summarizer
type TaskOutcome struct {
	Description   string
	ResultSummary string
	ErrorMessage  string
}

// Summarizer produces the cycle summary and the revised plan text
type Summarizer interface {
	Summarize(ctx context.Context, completed, failed []TaskOutcome) (string, error)
	UpdateTaskList(ctx context.Context, oldTaskList string, completed, failed []TaskOutcome, extra string) (string, error)
}
