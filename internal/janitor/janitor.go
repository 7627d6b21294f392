// Package janitor runs periodic maintenance sweeps over the job store. Its
// main duty is reconciling jobs left in running state by a crashed or
// restarted process: the runner registry is in-memory, so after a restart a
// running job with no registered runner is stale.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/orbitworks/orbit/internal/domain"
)

// Store is the persistence surface the janitor needs
type Store interface {
	ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)
	RecordJobError(ctx context.Context, id, msg string) error
}

// Registry reports which jobs have a live runner in this process
type Registry interface {
	IsActive(jobID string) bool
}

// Janitor sweeps for stale running jobs on a cron schedule
type Janitor struct {
	store      Store
	registry   Registry
	logger     *slog.Logger
	staleAfter time.Duration

	cron *cron.Cron
}

// New creates a janitor. staleAfter is the grace period measured from the
// job's last update before an orphaned running job is marked errored.
func New(store Store, registry Registry, staleAfter time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:      store,
		registry:   registry,
		logger:     logger.With("component", "janitor"),
		staleAfter: staleAfter,
	}
}

// Start schedules the sweep with the given cron expression (standard five
// field format, e.g. "*/10 * * * *").
func (j *Janitor) Start(ctx context.Context, cronExpr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(cronExpr, func() {
		if err := j.Sweep(ctx); err != nil {
			j.logger.Warn("sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep marks running jobs with no active runner as errored once they have
// been orphaned longer than the grace period.
func (j *Janitor) Sweep(ctx context.Context) error {
	jobs, err := j.store.ListJobsByStatus(ctx, domain.JobRunning)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-j.staleAfter)
	for _, job := range jobs {
		if j.registry.IsActive(job.ID) {
			continue
		}
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		j.logger.Warn("marking stale job as errored", "job_id", job.ID, "updated_at", job.UpdatedAt)
		if err := j.store.RecordJobError(ctx, job.ID, "orphaned: no active runner after restart"); err != nil {
			j.logger.Error("recording stale job error", "job_id", job.ID, "error", err)
		}
	}
	return nil
}
