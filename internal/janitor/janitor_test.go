package janitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitworks/orbit/internal/domain"
)

type fakeStore struct {
	jobs   []*domain.Job
	errors map[string]string
}

func (f *fakeStore) ListJobsByStatus(_ context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	var out []*domain.Job
	for _, j := range f.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordJobError(_ context.Context, id, msg string) error {
	if f.errors == nil {
		f.errors = make(map[string]string)
	}
	f.errors[id] = msg
	return nil
}

type fakeRegistry struct {
	active map[string]bool
}

func (f *fakeRegistry) IsActive(jobID string) bool { return f.active[jobID] }

func TestSweepMarksOrphanedJobs(t *testing.T) {
	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()

	store := &fakeStore{jobs: []*domain.Job{
		{ID: "orphan", Status: domain.JobRunning, UpdatedAt: old},
		{ID: "live", Status: domain.JobRunning, UpdatedAt: old},
		{ID: "recent", Status: domain.JobRunning, UpdatedAt: fresh},
		{ID: "done", Status: domain.JobCompleted, UpdatedAt: old},
	}}
	registry := &fakeRegistry{active: map[string]bool{"live": true}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j := New(store, registry, 30*time.Minute, logger)

	require.NoError(t, j.Sweep(context.Background()))

	assert.Len(t, store.errors, 1)
	assert.Contains(t, store.errors["orphan"], "orphaned")
}

func TestSweepNothingToDo(t *testing.T) {
	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j := New(store, &fakeRegistry{}, time.Minute, logger)

	require.NoError(t, j.Sweep(context.Background()))
	assert.Empty(t, store.errors)
}

func TestStartRejectsBadCron(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j := New(&fakeStore{}, &fakeRegistry{}, time.Minute, logger)

	err := j.Start(context.Background(), "not a cron expr")
	assert.Error(t, err)
}
