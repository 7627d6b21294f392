package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/events"
	"github.com/orbitworks/orbit/internal/jobstore"
)

// Engine runs the four-phase pipeline for one cycle of one job:
// discovery → execution → convergence → update. The cancellation token is
// checked between phases; an in-flight phase always finishes but the next
// one is not started.
type Engine struct {
	store      Store
	discoverer Discoverer
	summarizer Summarizer
	scheduler  *Scheduler
	events     events.Broadcaster
	logger     *slog.Logger
}

// NewEngine creates a cycle engine
func NewEngine(store Store, discoverer Discoverer, executor Executor, summarizer Summarizer, bc events.Broadcaster, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		discoverer: discoverer,
		summarizer: summarizer,
		scheduler:  NewScheduler(store, executor, bc, logger),
		events:     bc,
		logger:     logger.With("component", "engine"),
	}
}

// RunCycle executes cycle cycleNumber for the job. The boolean result is the
// continue signal: false means discovery found nothing and the job should
// finish normally. An early return on cancellation reports continue=true so
// the job stays resumable.
func (e *Engine) RunCycle(ctx context.Context, job *domain.Job, cycleNumber int, cancel *Cancel) (bool, error) {
	cycle := &domain.Cycle{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		CycleNumber: cycleNumber,
		Phase:       domain.PhaseDiscovery,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.InsertCycle(ctx, cycle); err != nil {
		return false, fmt.Errorf("inserting cycle %d: %w", cycleNumber, err)
	}
	e.events.Publish(events.New(events.CycleStarted, job.ID, map[string]any{
		"cycle_id":     cycle.ID,
		"cycle_number": cycleNumber,
	}))

	tasks, err := e.discover(ctx, job, cycle)
	if err != nil {
		return false, err
	}
	if len(tasks) == 0 {
		// Sole normal-termination signal besides the policy caps.
		if err := e.store.MarkCycleCompleted(ctx, cycle.ID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("completing empty cycle: %w", err)
		}
		e.logger.Info("no tasks discovered, job finished", "job_id", job.ID, "cycle", cycleNumber)
		return false, nil
	}

	if cancel.Requested() {
		return true, nil
	}

	if err := e.setPhase(ctx, job, cycle, domain.PhaseExecution); err != nil {
		return false, err
	}
	if _, err := e.scheduler.Run(ctx, job, cycle, tasks, cancel); err != nil {
		return false, fmt.Errorf("execution: %w", err)
	}

	if cancel.Requested() {
		return true, nil
	}

	completed, failed, err := e.converge(ctx, job, cycle)
	if err != nil {
		return false, err
	}

	if cancel.Requested() {
		return true, nil
	}

	if err := e.update(ctx, job, cycle, completed, failed); err != nil {
		return false, err
	}

	if err := e.store.MarkCycleCompleted(ctx, cycle.ID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("completing cycle: %w", err)
	}
	return true, nil
}

// discover assembles the discovery context, calls the Discoverer, and
// persists one task row per discovered item.
func (e *Engine) discover(ctx context.Context, job *domain.Job, cycle *domain.Cycle) ([]*domain.Task, error) {
	var prevSummary string
	if cycle.CycleNumber > 1 {
		prev, err := e.store.GetCycleByNumber(ctx, job.ID, cycle.CycleNumber-1)
		if err != nil && !errors.Is(err, jobstore.ErrNotFound) {
			return nil, fmt.Errorf("loading previous cycle: %w", err)
		}
		if prev != nil {
			prevSummary = prev.Summary
		}
	}

	dc := DiscoveryContext{
		RequestDocument: job.RequestDocument,
		TaskList:        job.TaskList,
		RepoOwner:       job.RepoOwner,
		RepoName:        job.RepoName,
		BaseBranch:      job.BaseBranch,
		WorkingBranch:   job.WorkingBranch,
		CycleNumber:     cycle.CycleNumber,
		PreviousSummary: prevSummary,
	}

	specs, err := e.discoverer.Discover(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(specs))
	discovered := make([]map[string]any, 0, len(specs))
	for i, spec := range specs {
		t := &domain.Task{
			ID:             uuid.NewString(),
			CycleID:        cycle.ID,
			JobID:          job.ID,
			TaskNumber:     i + 1,
			Description:    spec.Description,
			Context:        spec.Context,
			Priority:       spec.Priority,
			CanRunParallel: spec.Parallel,
			Status:         domain.TaskPending,
		}
		if err := e.store.InsertTask(ctx, t); err != nil {
			return nil, fmt.Errorf("inserting task %d: %w", t.TaskNumber, err)
		}
		tasks = append(tasks, t)
		discovered = append(discovered, map[string]any{"task_id": t.ID, "description": t.Description})
	}

	cycle.TasksDiscovered = len(tasks)
	if err := e.store.UpdateCycleCounters(ctx, cycle.ID, len(tasks), 0); err != nil {
		return nil, fmt.Errorf("updating discovery counter: %w", err)
	}
	if len(tasks) > 0 {
		e.events.Publish(events.New(events.TasksDiscovered, job.ID, map[string]any{
			"cycle_number": cycle.CycleNumber,
			"tasks":        discovered,
		}))
	}
	return tasks, nil
}

// converge re-reads the cycle's tasks and persists the completed/failed
// counts. Purely an aggregation step: no task is mutated here.
func (e *Engine) converge(ctx context.Context, job *domain.Job, cycle *domain.Cycle) (completed, failed []*domain.Task, err error) {
	if err := e.setPhase(ctx, job, cycle, domain.PhaseConvergence); err != nil {
		return nil, nil, err
	}

	tasks, err := e.store.ListTasks(ctx, cycle.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("convergence: listing tasks: %w", err)
	}
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskCompleted:
			completed = append(completed, t)
		case domain.TaskFailed:
			failed = append(failed, t)
		}
	}
	if err := e.store.UpdateCycleCounts(ctx, cycle.ID, len(completed), len(failed)); err != nil {
		return nil, nil, fmt.Errorf("convergence: persisting counts: %w", err)
	}
	return completed, failed, nil
}

// update produces the cycle summary and the revised plan text and persists both
func (e *Engine) update(ctx context.Context, job *domain.Job, cycle *domain.Cycle, completedTasks, failedTasks []*domain.Task) error {
	if err := e.setPhase(ctx, job, cycle, domain.PhaseUpdate); err != nil {
		return err
	}

	completed := outcomes(completedTasks)
	failed := outcomes(failedTasks)

	summary, err := e.summarizer.Summarize(ctx, completed, failed)
	if err != nil {
		return fmt.Errorf("update: summarize: %w", err)
	}
	newList, err := e.summarizer.UpdateTaskList(ctx, job.TaskList, completed, failed, job.RequestDocument)
	if err != nil {
		return fmt.Errorf("update: task list: %w", err)
	}

	if err := e.store.UpdateCycleSummary(ctx, cycle.ID, summary); err != nil {
		return fmt.Errorf("update: persisting summary: %w", err)
	}
	if err := e.store.UpdateJobTaskList(ctx, job.ID, newList); err != nil {
		return fmt.Errorf("update: persisting task list: %w", err)
	}
	job.TaskList = newList

	e.events.Publish(events.New(events.CycleCompleted, job.ID, map[string]any{
		"cycle_number":    cycle.CycleNumber,
		"tasks_completed": len(completedTasks),
		"tasks_failed":    len(failedTasks),
		"summary":         summary,
	}))
	return nil
}

func (e *Engine) setPhase(ctx context.Context, job *domain.Job, cycle *domain.Cycle, phase domain.CyclePhase) error {
	if err := e.store.UpdateCyclePhase(ctx, cycle.ID, phase); err != nil {
		return fmt.Errorf("entering %s phase: %w", phase, err)
	}
	cycle.Phase = phase
	e.events.Publish(events.New(events.CyclePhase, job.ID, map[string]any{
		"cycle_number": cycle.CycleNumber,
		"phase":        string(phase),
	}))
	return nil
}

func outcomes(tasks []*domain.Task) []TaskOutcome {
	out := make([]TaskOutcome, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskOutcome{
			Description:   t.Description,
			ResultSummary: t.ResultSummary,
			ErrorMessage:  t.ErrorMessage,
		})
	}
	return out
}
