package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySingleRunnerPerJob(t *testing.T) {
	r := NewRegistry()

	rn, err := r.Register("job-1")
	require.NoError(t, err)
	require.NotNil(t, rn)
	assert.True(t, r.IsActive("job-1"))
	assert.Equal(t, 1, r.ActiveCount())

	_, err = r.Register("job-1")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	r.Unregister("job-1")
	assert.False(t, r.IsActive("job-1"))

	_, err = r.Register("job-1")
	assert.NoError(t, err, "slot reusable after unregister")
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("missing")
	assert.False(t, ok)

	rn, err := r.Register("job-2")
	require.NoError(t, err)
	got, ok := r.Get("job-2")
	assert.True(t, ok)
	assert.Same(t, rn, got)
}

func TestCancelIdempotent(t *testing.T) {
	c := NewCancel()
	assert.False(t, c.Requested())

	c.Signal()
	c.Signal()
	assert.True(t, c.Requested())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel not closed after Signal")
	}
}
