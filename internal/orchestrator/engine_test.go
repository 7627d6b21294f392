package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/events"
)

func newTestEngine(t *testing.T, store Store, d Discoverer, ex Executor, sum Summarizer) *Engine {
	t.Helper()
	return NewEngine(store, d, ex, sum, events.Nop{}, testLogger())
}

func TestRunCycleEmptyDiscoverySignalsCompletion(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	engine := newTestEngine(t, store,
		&scriptDiscoverer{},
		&funcExecutor{fn: func(*domain.Task) (string, error) { return "", nil }},
		&stubSummarizer{})

	cont, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.NoError(t, err)
	assert.False(t, cont, "empty discovery must end the job")

	cycle, err := store.GetCycleByNumber(context.Background(), job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, cycle.Phase)
	assert.NotNil(t, cycle.CompletedAt)
	assert.Equal(t, 0, cycle.TasksDiscovered)
}

func TestRunCycleHappyPath(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	disc := &scriptDiscoverer{script: [][]TaskSpec{{
		{Description: "write docs", Parallel: true},
		{Description: "wire config", Parallel: true},
		{Description: "run release", Parallel: false},
	}}}
	sum := &stubSummarizer{summary: "cycle done", taskList: "- [x] all done"}
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(task *domain.Task) (string, error) { return "ok: " + task.Description, nil }},
		sum)

	cont, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.NoError(t, err)
	assert.True(t, cont)

	cycle, err := store.GetCycleByNumber(context.Background(), job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseCompleted, cycle.Phase)
	assert.Equal(t, 3, cycle.TasksDiscovered)
	assert.Equal(t, 3, cycle.TasksLaunched)
	assert.Equal(t, 3, cycle.TasksCompleted)
	assert.Equal(t, 0, cycle.TasksFailed)
	assert.Equal(t, "cycle done", cycle.Summary)

	tasks, err := store.ListTasks(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, i+1, task.TaskNumber, "tasks numbered in discovery order")
		assert.Equal(t, domain.TaskCompleted, task.Status)
		assert.True(t, strings.HasPrefix(task.ResultSummary, "ok: "))
	}

	// The revised plan text lands on the job row.
	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "- [x] all done", got.TaskList)
	assert.Len(t, sum.gotCompleted, 3)
	assert.Empty(t, sum.gotFailed)
}

func TestRunCyclePartialBatchFailureIsolated(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	disc := &scriptDiscoverer{script: [][]TaskSpec{{
		{Description: "good one", Parallel: true},
		{Description: "bad apple", Parallel: true},
		{Description: "good two", Parallel: true},
	}}}
	sum := &stubSummarizer{summary: "mixed results"}
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(task *domain.Task) (string, error) {
			if task.Description == "bad apple" {
				return "", errors.New("tool exploded")
			}
			return "done", nil
		}},
		sum)

	cont, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.NoError(t, err, "task failures must not fail the cycle")
	assert.True(t, cont)

	cycle, err := store.GetCycleByNumber(context.Background(), job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, cycle.TasksCompleted)
	assert.Equal(t, 1, cycle.TasksFailed)

	tasks, err := store.ListTasks(context.Background(), cycle.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.Description == "bad apple" {
			assert.Equal(t, domain.TaskFailed, task.Status)
			assert.Contains(t, task.ErrorMessage, "tool exploded")
		} else {
			assert.Equal(t, domain.TaskCompleted, task.Status)
		}
	}

	assert.Len(t, sum.gotCompleted, 2)
	assert.Len(t, sum.gotFailed, 1)
}

func TestRunCycleExecutorPanicBecomesTaskFailure(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	disc := &scriptDiscoverer{script: [][]TaskSpec{{
		{Description: "panicky", Parallel: false},
	}}}
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(*domain.Task) (string, error) { panic("boom") }},
		&stubSummarizer{summary: "survived"})

	cont, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.NoError(t, err)
	assert.True(t, cont)

	cycle, err := store.GetCycleByNumber(context.Background(), job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cycle.TasksFailed)
}

func TestRunCycleDiscoveryErrorIsFatal(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	engine := newTestEngine(t, store,
		&scriptDiscoverer{err: errors.New("provider unavailable")},
		&funcExecutor{fn: func(*domain.Task) (string, error) { return "", nil }},
		&stubSummarizer{})

	_, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery")
}

func TestRunCycleSummarizerErrorIsFatal(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	disc := &scriptDiscoverer{script: [][]TaskSpec{{{Description: "one", Parallel: true}}}}
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(*domain.Task) (string, error) { return "ok", nil }},
		&stubSummarizer{err: errors.New("summarizer down")})

	_, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarizer down")
}

func TestRunCycleCancelledBeforeExecutionIsResumable(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	executed := false
	disc := &scriptDiscoverer{script: [][]TaskSpec{{{Description: "never runs", Parallel: true}}}}
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(*domain.Task) (string, error) { executed = true; return "", nil }},
		&stubSummarizer{})

	cancel := NewCancel()
	cancel.Signal()

	cont, err := engine.RunCycle(context.Background(), job, 1, cancel)
	require.NoError(t, err)
	assert.True(t, cont, "interrupted cycle reports resumable")
	assert.False(t, executed, "execution phase must not start after cancellation")
}

func TestRunCyclePreviousSummaryFlowsIntoDiscovery(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	var seen []string
	disc := discoverFunc(func(_ context.Context, dc DiscoveryContext) ([]TaskSpec, error) {
		seen = append(seen, dc.PreviousSummary)
		if dc.CycleNumber == 1 {
			return []TaskSpec{{Description: "first", Parallel: true}}, nil
		}
		return nil, nil
	})
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(*domain.Task) (string, error) { return "ok", nil }},
		&stubSummarizer{summary: "summary of cycle one"})

	cont, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.NoError(t, err)
	require.True(t, cont)

	cont, err = engine.RunCycle(context.Background(), job, 2, NewCancel())
	require.NoError(t, err)
	assert.False(t, cont)

	require.Len(t, seen, 2)
	assert.Empty(t, seen[0], "first cycle has no previous summary")
	assert.Equal(t, "summary of cycle one", seen[1])
}

func TestRunCycleDuplicateNumberRejected(t *testing.T) {
	store := newTestStore(t)
	job := seedJob(t, store, nil)

	disc := &scriptDiscoverer{script: [][]TaskSpec{
		{{Description: "a", Parallel: true}},
		{{Description: "b", Parallel: true}},
	}}
	engine := newTestEngine(t, store, disc,
		&funcExecutor{fn: func(*domain.Task) (string, error) { return "ok", nil }},
		&stubSummarizer{summary: "s"})

	_, err := engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.NoError(t, err)

	_, err = engine.RunCycle(context.Background(), job, 1, NewCancel())
	require.Error(t, err, "cycle numbers are unique per job")
	assert.Contains(t, fmt.Sprintf("%v", err), "inserting cycle")
}

type discoverFunc func(ctx context.Context, dc DiscoveryContext) ([]TaskSpec, error)

func (f discoverFunc) Discover(ctx context.Context, dc DiscoveryContext) ([]TaskSpec, error) {
	return f(ctx, dc)
}
