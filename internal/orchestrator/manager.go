package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/events"
	"github.com/orbitworks/orbit/internal/jobstore"
)

const (
	defaultCycleDelay      = 2 * time.Second
	defaultMaxParallelSize = 3
)

// Manager owns job creation and the start/pause/resume/cancel lifecycle.
// Each started job runs its cycle loop on its own goroutine until the
// termination policy fires, discovery comes up empty, or cancellation is
// requested.
type Manager struct {
	store    Store
	engine   *Engine
	events   events.Broadcaster
	registry *Registry
	logger   *slog.Logger

	cycleDelay  time.Duration
	maxParallel int
}

// NewManager wires a lifecycle manager from its collaborators
func NewManager(store Store, discoverer Discoverer, executor Executor, summarizer Summarizer, bc events.Broadcaster, registry *Registry, logger *slog.Logger) *Manager {
	return &Manager{
		store:       store,
		engine:      NewEngine(store, discoverer, executor, summarizer, bc, logger),
		events:      bc,
		registry:    registry,
		logger:      logger.With("component", "manager"),
		cycleDelay:  defaultCycleDelay,
		maxParallel: defaultMaxParallelSize,
	}
}

// SetCycleDelay overrides the pause between cycles (shortened in tests)
func (m *Manager) SetCycleDelay(d time.Duration) {
	m.cycleDelay = d
}

// SetDefaultMaxParallel overrides the parallelism cap applied to jobs created
// without one. Values below 1 are ignored. Only affects future CreateJob
// calls; existing jobs keep the cap they were created with.
func (m *Manager) SetDefaultMaxParallel(n int) {
	if n >= 1 {
		m.maxParallel = n
	}
}

// CreateJobParams is the configuration for a new job
type CreateJobParams struct {
	RepoOwner        string
	RepoName         string
	BaseBranch       string
	WorkingBranch    string
	RequestDocument  string
	TaskList         string
	Provider         string
	MaxCycles        int
	TimeLimitMinutes int
	MaxParallelTasks int
}

func (p *CreateJobParams) validate() error {
	if strings.TrimSpace(p.RepoOwner) == "" {
		return fmt.Errorf("%w: repo owner is required", ErrInvalidState)
	}
	if strings.TrimSpace(p.RepoName) == "" {
		return fmt.Errorf("%w: repo name is required", ErrInvalidState)
	}
	if strings.TrimSpace(p.RequestDocument) == "" {
		return fmt.Errorf("%w: request document is required", ErrInvalidState)
	}
	if p.MaxCycles < 0 || p.TimeLimitMinutes < 0 || p.MaxParallelTasks < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidState)
	}
	return nil
}

// CreateJob validates the config and persists a new pending job. Pure
// creation: execution does not start until StartJob.
func (m *Manager) CreateJob(ctx context.Context, ownerID string, params CreateJobParams) (*domain.Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	branch := params.WorkingBranch
	if branch == "" {
		branch = "orbit/" + uuid.NewString()[:8]
	}
	base := params.BaseBranch
	if base == "" {
		base = "main"
	}
	parallel := params.MaxParallelTasks
	if parallel < 1 {
		parallel = m.maxParallel
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		RepoOwner:        params.RepoOwner,
		RepoName:         params.RepoName,
		BaseBranch:       base,
		WorkingBranch:    branch,
		SessionPath:      domain.SessionPathFor(params.RepoOwner, params.RepoName, branch),
		RequestDocument:  params.RequestDocument,
		TaskList:         params.TaskList,
		Status:           domain.JobPending,
		Provider:         params.Provider,
		MaxCycles:        params.MaxCycles,
		TimeLimitMinutes: params.TimeLimitMinutes,
		MaxParallelTasks: parallel,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}
	m.logger.Info("job created", "job_id", job.ID, "repo", job.RepoOwner+"/"+job.RepoName, "branch", job.WorkingBranch)
	return job, nil
}

// StartJob registers an active runner for the job and launches its cycle
// loop in the background. Fails with ErrAlreadyRunning if a runner exists,
// ErrNotFound if the job is unknown, or ErrInvalidState unless the job is
// pending or paused.
func (m *Manager) StartJob(ctx context.Context, jobID, credential string) error {
	rn, err := m.registry.Register(jobID)
	if err != nil {
		return err
	}

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.registry.Unregister(jobID)
		if errors.Is(err, jobstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading job: %w", err)
	}
	if job.Status != domain.JobPending && job.Status != domain.JobPaused {
		m.registry.Unregister(jobID)
		return fmt.Errorf("%w: cannot start job in status %s", ErrInvalidState, job.Status)
	}

	// startedAt is stamped on first start only; the time limit bounds total
	// elapsed time across pause/resume.
	if err := m.store.MarkJobStarted(ctx, jobID, time.Now().UTC()); err != nil {
		m.registry.Unregister(jobID)
		return fmt.Errorf("marking job started: %w", err)
	}

	m.events.StartSession(jobID)
	m.events.Publish(events.New(events.JobStarted, jobID, nil))
	m.logger.Info("job started", "job_id", jobID)

	loopCtx := WithCredential(context.WithoutCancel(ctx), credential)
	go m.runLoop(loopCtx, jobID, rn)
	return nil
}

// PauseJob signals cooperative cancellation and marks the job paused. The
// in-flight phase finishes; the loop exits at the next checkpoint.
func (m *Manager) PauseJob(ctx context.Context, jobID string) error {
	rn, ok := m.registry.Get(jobID)
	if !ok {
		return ErrNotRunning
	}
	rn.Cancel().Signal()

	if err := m.store.UpdateJobStatus(ctx, jobID, domain.JobPaused); err != nil {
		return fmt.Errorf("marking job paused: %w", err)
	}

	cycleInProgress := 0
	if job, err := m.store.GetJob(ctx, jobID); err == nil {
		cycleInProgress = job.CurrentCycle + 1
	}
	m.events.Publish(events.New(events.JobPaused, jobID, map[string]any{"cycle": cycleInProgress}))
	m.logger.Info("job paused", "job_id", jobID)
	return nil
}

// ResumeJob restarts a paused job
func (m *Manager) ResumeJob(ctx context.Context, jobID, credential string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("loading job: %w", err)
	}
	if job.Status != domain.JobPaused {
		return fmt.Errorf("%w: cannot resume job in status %s", ErrInvalidState, job.Status)
	}
	if err := m.StartJob(ctx, jobID, credential); err != nil {
		return err
	}
	m.events.Publish(events.New(events.JobResumed, jobID, nil))
	return nil
}

// CancelJob signals cancellation, waits for the active runner to exit, and
// force-marks the job cancelled. Idempotent when no runner is active.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	if rn, ok := m.registry.Get(jobID); ok {
		rn.Cancel().Signal()
		rn.Wait()
		m.registry.Unregister(jobID)
	}

	if err := m.store.MarkJobCompleted(ctx, jobID, domain.JobCancelled, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking job cancelled: %w", err)
	}
	data := map[string]any{}
	if job, err := m.store.GetJob(ctx, jobID); err == nil {
		data["repo"] = job.RepoOwner + "/" + job.RepoName
		data["branch"] = job.WorkingBranch
		data["cycles"] = job.CurrentCycle
	}
	m.events.Publish(events.New(events.JobCancelled, jobID, data))
	m.events.EndSession(jobID, "cancelled")
	m.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

// runLoop is the per-job cycle loop. It reloads the job before every cycle,
// evaluates the termination policy, runs the engine, and commits the cycle
// count. It exits on termination, empty discovery, cancellation, or error.
func (m *Manager) runLoop(ctx context.Context, jobID string, rn *Runner) {
	defer close(rn.done)
	defer m.registry.Unregister(jobID)

	for !rn.Cancel().Requested() {
		job, err := m.store.GetJob(ctx, jobID)
		if err != nil {
			m.failJob(ctx, jobID, fmt.Errorf("reloading job: %w", err))
			return
		}

		if reason, stop := EvaluateTermination(job, time.Now().UTC()); stop {
			m.completeJob(ctx, job, reason)
			return
		}

		nextCycle := job.CurrentCycle + 1
		cont, err := m.engine.RunCycle(ctx, job, nextCycle, rn.Cancel())
		if err != nil {
			m.failJob(ctx, jobID, err)
			return
		}

		// Committed regardless of outcome: an interrupted cycle is superseded
		// and resume continues at the next number.
		if err := m.store.UpdateJobCycle(ctx, jobID, nextCycle); err != nil {
			m.failJob(ctx, jobID, fmt.Errorf("committing cycle %d: %w", nextCycle, err))
			return
		}

		if !cont {
			job.CurrentCycle = nextCycle
			m.completeJob(ctx, job, domain.ReasonAllComplete)
			return
		}
		if rn.Cancel().Requested() {
			// Job status was already set by the pause/cancel caller.
			return
		}

		select {
		case <-time.After(m.cycleDelay):
		case <-rn.Cancel().Done():
			return
		}
	}
}

func (m *Manager) completeJob(ctx context.Context, job *domain.Job, reason domain.TerminationReason) {
	if err := m.store.MarkJobCompleted(ctx, job.ID, domain.JobCompleted, time.Now().UTC()); err != nil {
		m.logger.Error("marking job completed", "job_id", job.ID, "error", err)
	}
	m.events.Publish(events.New(events.JobCompleted, job.ID, map[string]any{
		"reason": string(reason),
		"repo":   job.RepoOwner + "/" + job.RepoName,
		"branch": job.WorkingBranch,
		"cycles": job.CurrentCycle,
	}))
	m.events.EndSession(job.ID, string(reason))
	m.logger.Info("job completed", "job_id", job.ID, "reason", reason)
}

// failJob is the single catch point for loop-fatal errors: the job moves to
// error status with lastError recorded and does not auto-retry.
func (m *Manager) failJob(ctx context.Context, jobID string, cause error) {
	m.logger.Error("job failed", "job_id", jobID, "error", cause)
	if err := m.store.RecordJobError(ctx, jobID, cause.Error()); err != nil {
		m.logger.Error("recording job error", "job_id", jobID, "error", err)
	}
	m.events.Publish(events.New(events.JobError, jobID, map[string]any{"error": cause.Error()}))
	m.events.EndSession(jobID, "error")
}

// GetJob loads one job
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetJobWithCycles loads a job and its cycles ordered by cycle number
func (m *Manager) GetJobWithCycles(ctx context.Context, jobID string) (*domain.Job, []*domain.Cycle, error) {
	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	cycles, err := m.store.ListCycles(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, cycles, nil
}

// GetCycleWithTasks loads a cycle and its tasks ordered by task number
func (m *Manager) GetCycleWithTasks(ctx context.Context, cycleID string) (*domain.Cycle, []*domain.Task, error) {
	cycle, err := m.store.GetCycle(ctx, cycleID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	tasks, err := m.store.ListTasks(ctx, cycleID)
	if err != nil {
		return nil, nil, err
	}
	return cycle, tasks, nil
}

// ListJobs returns an owner's jobs, newest first
func (m *Manager) ListJobs(ctx context.Context, ownerID string, limit int) ([]*domain.Job, error) {
	return m.store.ListJobs(ctx, ownerID, limit)
}

// UpdateRequestDocument replaces a job's goal document
func (m *Manager) UpdateRequestDocument(ctx context.Context, jobID, doc string) error {
	return m.store.UpdateJobRequestDocument(ctx, jobID, doc)
}

// UpdateTaskList replaces a job's plan text
func (m *Manager) UpdateTaskList(ctx context.Context, jobID, taskList string) error {
	return m.store.UpdateJobTaskList(ctx, jobID, taskList)
}

// IsActive reports whether a job has a live runner in this process
func (m *Manager) IsActive(jobID string) bool {
	return m.registry.IsActive(jobID)
}
