package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/events"
	"github.com/orbitworks/orbit/internal/jobstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *jobstore.Store {
	t.Helper()
	store, err := jobstore.New(":memory:")
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedJob(t *testing.T, store *jobstore.Store, mutate func(*domain.Job)) *domain.Job {
	t.Helper()
	now := time.Now().UTC()
	job := &domain.Job{
		ID:               uuid.NewString(),
		OwnerID:          "owner-1",
		RepoOwner:        "orbitworks",
		RepoName:         "demo",
		BaseBranch:       "main",
		WorkingBranch:    "orbit/test",
		SessionPath:      "orbitworks/demo/orbit-test",
		RequestDocument:  "# Goal\nShip the demo.",
		TaskList:         "- [ ] first task",
		Status:           domain.JobPending,
		MaxParallelTasks: 3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if mutate != nil {
		mutate(job)
	}
	if err := store.InsertJob(context.Background(), job); err != nil {
		t.Fatalf("seeding job: %v", err)
	}
	return job
}

// scriptDiscoverer returns a fixed sequence of task lists, one per call.
// Calls past the end of the script discover nothing.
type scriptDiscoverer struct {
	script [][]TaskSpec
	calls  int
	err    error
}

func (d *scriptDiscoverer) Discover(_ context.Context, _ DiscoveryContext) ([]TaskSpec, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.calls++
	if d.calls > len(d.script) {
		return nil, nil
	}
	return d.script[d.calls-1], nil
}

// funcExecutor delegates each task to fn
type funcExecutor struct {
	fn func(task *domain.Task) (string, error)
}

func (e *funcExecutor) Execute(_ context.Context, _ *domain.Job, task *domain.Task) (string, error) {
	return e.fn(task)
}

// stubSummarizer records its inputs and echoes canned outputs
type stubSummarizer struct {
	summary      string
	taskList     string
	err          error
	gotCompleted []TaskOutcome
	gotFailed    []TaskOutcome
}

func (s *stubSummarizer) Summarize(_ context.Context, completed, failed []TaskOutcome) (string, error) {
	s.gotCompleted = completed
	s.gotFailed = failed
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

func (s *stubSummarizer) UpdateTaskList(_ context.Context, old string, _, _ []TaskOutcome, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.taskList == "" {
		return old, nil
	}
	return s.taskList, nil
}

func newTestManager(t *testing.T, store *jobstore.Store, d Discoverer, ex Executor, sum Summarizer) *Manager {
	t.Helper()
	m := NewManager(store, d, ex, sum, events.Nop{}, NewRegistry(), testLogger())
	m.SetCycleDelay(time.Millisecond)
	return m
}

func waitInactive(t *testing.T, m *Manager, jobID string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for m.IsActive(jobID) {
		select {
		case <-deadline:
			t.Fatal("runner did not exit in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
