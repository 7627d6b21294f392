package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/events"
)

// PartitionBatches splits a cycle's tasks into ordered batches. Parallel-capable
// tasks are chunked into groups of at most maxParallel, preserving taskNumber
// order; each sequential task forms its own singleton batch. Parallel chunks
// are scheduled ahead of the sequential singletons.
func PartitionBatches(tasks []*domain.Task, maxParallel int) [][]*domain.Task {
	if maxParallel < 1 {
		maxParallel = 1
	}

	var parallel, sequential []*domain.Task
	for _, t := range tasks {
		if t.CanRunParallel {
			parallel = append(parallel, t)
		} else {
			sequential = append(sequential, t)
		}
	}

	var batches [][]*domain.Task
	for len(parallel) > 0 {
		n := maxParallel
		if n > len(parallel) {
			n = len(parallel)
		}
		batches = append(batches, parallel[:n])
		parallel = parallel[n:]
	}
	for _, t := range sequential {
		batches = append(batches, []*domain.Task{t})
	}
	return batches
}

// Scheduler runs a cycle's tasks batch by batch: each batch fans out to the
// Executor concurrently and the next batch starts only once every member has
// settled. A failing task never aborts its siblings.
type Scheduler struct {
	store    Store
	executor Executor
	events   events.Broadcaster
	logger   *slog.Logger
}

// NewScheduler creates a batch scheduler
func NewScheduler(store Store, executor Executor, bc events.Broadcaster, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		executor: executor,
		events:   bc,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run executes all tasks for a cycle and returns how many were launched.
// Cancellation is observed between batches: the in-flight batch finishes,
// remaining batches are not started.
func (s *Scheduler) Run(ctx context.Context, job *domain.Job, cycle *domain.Cycle, tasks []*domain.Task, cancel *Cancel) (int, error) {
	batches := PartitionBatches(tasks, job.MaxParallelTasks)

	launched := 0
	for _, batch := range batches {
		if cancel.Requested() {
			break
		}

		now := time.Now().UTC()
		for _, t := range batch {
			if err := s.store.MarkTaskRunning(ctx, t.ID, now); err != nil {
				return launched, fmt.Errorf("marking task %s running: %w", t.ID, err)
			}
			s.events.Publish(events.New(events.TaskStarted, job.ID, map[string]any{
				"task_id":     t.ID,
				"task_number": t.TaskNumber,
				"description": t.Description,
			}))
		}
		launched += len(batch)
		if err := s.store.UpdateCycleCounters(ctx, cycle.ID, cycle.TasksDiscovered, launched); err != nil {
			return launched, fmt.Errorf("updating launch counter: %w", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		var settleErr error
		for _, t := range batch {
			wg.Add(1)
			go func(task *domain.Task) {
				defer wg.Done()
				if err := s.runTask(ctx, job, task); err != nil {
					mu.Lock()
					if settleErr == nil {
						settleErr = err
					}
					mu.Unlock()
				}
			}(t)
		}
		wg.Wait()
		if settleErr != nil {
			return launched, settleErr
		}
	}

	return launched, nil
}

// runTask invokes the Executor for a single task and persists its terminal
// state. The returned error reports persistence failures only; an Executor
// failure settles the task as failed and is not propagated.
func (s *Scheduler) runTask(ctx context.Context, job *domain.Job, task *domain.Task) error {
	summary, execErr := s.execute(ctx, job, task)

	now := time.Now().UTC()
	if execErr != nil {
		s.logger.Warn("task failed", "job_id", job.ID, "task_id", task.ID, "error", execErr)
		if err := s.store.MarkTaskFailed(ctx, task.ID, execErr.Error(), now); err != nil {
			return fmt.Errorf("marking task %s failed: %w", task.ID, err)
		}
		s.events.Publish(events.New(events.TaskFailed, job.ID, map[string]any{
			"task_id": task.ID,
			"error":   execErr.Error(),
		}))
		return nil
	}

	if err := s.store.MarkTaskCompleted(ctx, task.ID, summary, now); err != nil {
		return fmt.Errorf("marking task %s completed: %w", task.ID, err)
	}
	s.events.Publish(events.New(events.TaskCompleted, job.ID, map[string]any{
		"task_id": task.ID,
		"result":  summary,
	}))
	return nil
}

// execute calls the Executor, converting a panic into a task failure so a
// misbehaving implementation cannot take down the batch.
func (s *Scheduler) execute(ctx context.Context, job *domain.Job, task *domain.Task) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return s.executor.Execute(ctx, job, task)
}
