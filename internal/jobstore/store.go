package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/orbitworks/orbit/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("jobstore: not found")

// Store provides SQLite-backed persistence for jobs, cycles and tasks
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertJob persists a new job row
func (s *Store) InsertJob(ctx context.Context, job *domain.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, repo_owner, repo_name, base_branch, working_branch,
			session_path, request_document, task_list, status, provider, current_cycle,
			max_cycles, time_limit_minutes, max_parallel_tasks, last_error, error_count,
			created_at, updated_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.OwnerID, job.RepoOwner, job.RepoName, job.BaseBranch, job.WorkingBranch,
		job.SessionPath, job.RequestDocument, job.TaskList, string(job.Status), job.Provider,
		job.CurrentCycle, job.MaxCycles, job.TimeLimitMinutes, job.MaxParallelTasks,
		job.LastError, job.ErrorCount, job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt,
	)
	return err
}

const jobColumns = `id, owner_id, repo_owner, repo_name, base_branch, working_branch,
	session_path, request_document, task_list, status, provider, current_cycle,
	max_cycles, time_limit_minutes, max_parallel_tasks, last_error, error_count,
	created_at, updated_at, started_at, completed_at`

// GetJob retrieves a job by id
func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs for an owner ordered by creation time descending
func (s *Store) ListJobs(ctx context.Context, ownerID string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListJobsByStatus returns all jobs in the given status
func (s *Store) ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus updates a job's status
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	return err
}

// MarkJobStarted sets status=running and stamps started_at if not already set.
// The start timestamp survives pause/resume so the time limit bounds total
// elapsed time.
func (s *Store) MarkJobStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ?`,
		string(domain.JobRunning), at, at, id)
	return err
}

// MarkJobCompleted sets a terminal status and stamps completed_at
func (s *Store) MarkJobCompleted(ctx context.Context, id string, status domain.JobStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(status), at, at, id)
	return err
}

// UpdateJobCycle persists the count of completed cycles
func (s *Store) UpdateJobCycle(ctx context.Context, id string, currentCycle int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET current_cycle = ?, updated_at = ? WHERE id = ?`,
		currentCycle, time.Now().UTC(), id)
	return err
}

// RecordJobError moves a job to error status, recording the message and
// incrementing the error counter
func (s *Store) RecordJobError(ctx context.Context, id string, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, error_count = error_count + 1, updated_at = ?
		WHERE id = ?`,
		string(domain.JobError), msg, time.Now().UTC(), id)
	return err
}

// UpdateJobRequestDocument replaces the job's request document
func (s *Store) UpdateJobRequestDocument(ctx context.Context, id, doc string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET request_document = ?, updated_at = ? WHERE id = ?`,
		doc, time.Now().UTC(), id)
	return err
}

// UpdateJobTaskList replaces the job's plan text
func (s *Store) UpdateJobTaskList(ctx context.Context, id, taskList string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET task_list = ?, updated_at = ? WHERE id = ?`,
		taskList, time.Now().UTC(), id)
	return err
}

// InsertCycle persists a new cycle row
func (s *Store) InsertCycle(ctx context.Context, c *domain.Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, job_id, cycle_number, phase, tasks_discovered, tasks_launched,
			tasks_completed, tasks_failed, summary, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.JobID, c.CycleNumber, string(c.Phase), c.TasksDiscovered, c.TasksLaunched,
		c.TasksCompleted, c.TasksFailed, c.Summary, c.CreatedAt, c.CompletedAt,
	)
	return err
}

const cycleColumns = `id, job_id, cycle_number, phase, tasks_discovered, tasks_launched,
	tasks_completed, tasks_failed, summary, created_at, completed_at`

// GetCycle retrieves a cycle by id
func (s *Store) GetCycle(ctx context.Context, id string) (*domain.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
	return scanCycle(row)
}

// GetCycleByNumber retrieves a job's cycle by its number
func (s *Store) GetCycleByNumber(ctx context.Context, jobID string, number int) (*domain.Cycle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE job_id = ? AND cycle_number = ?`, jobID, number)
	return scanCycle(row)
}

// ListCycles returns a job's cycles ordered by cycle number ascending
func (s *Store) ListCycles(ctx context.Context, jobID string) ([]*domain.Cycle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE job_id = ? ORDER BY cycle_number`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []*domain.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// UpdateCyclePhase records the phase a cycle has reached
func (s *Store) UpdateCyclePhase(ctx context.Context, id string, phase domain.CyclePhase) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET phase = ? WHERE id = ?`, string(phase), id)
	return err
}

// UpdateCycleCounters persists the discovery/launch counters
func (s *Store) UpdateCycleCounters(ctx context.Context, id string, discovered, launched int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET tasks_discovered = ?, tasks_launched = ? WHERE id = ?`,
		discovered, launched, id)
	return err
}

// UpdateCycleCounts persists the convergence-phase completed/failed counts
func (s *Store) UpdateCycleCounts(ctx context.Context, id string, completed, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET tasks_completed = ?, tasks_failed = ? WHERE id = ?`,
		completed, failed, id)
	return err
}

// UpdateCycleSummary persists the update-phase summary text
func (s *Store) UpdateCycleSummary(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cycles SET summary = ? WHERE id = ?`, summary, id)
	return err
}

// MarkCycleCompleted sets phase=completed and stamps completed_at
func (s *Store) MarkCycleCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cycles SET phase = ?, completed_at = ? WHERE id = ?`,
		string(domain.PhaseCompleted), at, id)
	return err
}

// InsertTask persists a new task row
func (s *Store) InsertTask(ctx context.Context, t *domain.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, cycle_id, job_id, task_number, description, context, priority,
			can_run_parallel, status, result_summary, error_message, retry_count, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.CycleID, t.JobID, t.TaskNumber, t.Description, t.Context, string(t.Priority),
		t.CanRunParallel, string(t.Status), t.ResultSummary, t.ErrorMessage, t.RetryCount,
		t.StartedAt, t.CompletedAt,
	)
	return err
}

const taskColumns = `id, cycle_id, job_id, task_number, description, context, priority,
	can_run_parallel, status, result_summary, error_message, retry_count, started_at, completed_at`

// GetTask retrieves a task by id
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns a cycle's tasks ordered by task number ascending
func (s *Store) ListTasks(ctx context.Context, cycleID string) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE cycle_id = ? ORDER BY task_number`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskRunning sets status=running and stamps started_at
func (s *Store) MarkTaskRunning(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, started_at = ? WHERE id = ?`,
		string(domain.TaskRunning), at, id)
	return err
}

// MarkTaskCompleted records a successful settlement
func (s *Store) MarkTaskCompleted(ctx context.Context, id, resultSummary string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result_summary = ?, completed_at = ? WHERE id = ?`,
		string(domain.TaskCompleted), resultSummary, at, id)
	return err
}

// MarkTaskFailed records a failed settlement
func (s *Store) MarkTaskFailed(ctx context.Context, id, errorMessage string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(domain.TaskFailed), errorMessage, at, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var status, provider string
	var taskList, lastError sql.NullString
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.RepoOwner, &job.RepoName, &job.BaseBranch, &job.WorkingBranch,
		&job.SessionPath, &job.RequestDocument, &taskList, &status, &provider, &job.CurrentCycle,
		&job.MaxCycles, &job.TimeLimitMinutes, &job.MaxParallelTasks, &lastError, &job.ErrorCount,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Provider = provider
	job.TaskList = taskList.String
	job.LastError = lastError.String
	return &job, nil
}

func scanCycle(row rowScanner) (*domain.Cycle, error) {
	var c domain.Cycle
	var phase string
	var summary sql.NullString
	err := row.Scan(
		&c.ID, &c.JobID, &c.CycleNumber, &phase, &c.TasksDiscovered, &c.TasksLaunched,
		&c.TasksCompleted, &c.TasksFailed, &summary, &c.CreatedAt, &c.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Phase = domain.CyclePhase(phase)
	c.Summary = summary.String
	return &c, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var priority, status string
	var context, result, errMsg sql.NullString
	err := row.Scan(
		&t.ID, &t.CycleID, &t.JobID, &t.TaskNumber, &t.Description, &context, &priority,
		&t.CanRunParallel, &status, &result, &errMsg, &t.RetryCount, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Context = context.String
	t.Priority = domain.Priority(priority)
	t.Status = domain.TaskStatus(status)
	t.ResultSummary = result.String
	t.ErrorMessage = errMsg.String
	return &t, nil
}
