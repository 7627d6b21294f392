package orchestrator

import "errors"

var (
	// ErrAlreadyRunning is returned when a start is attempted for a job that
	// already has an active runner.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrNotRunning is returned when a pause is attempted with no active runner.
	ErrNotRunning = errors.New("job not running")
	// ErrNotFound is returned when the referenced job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidState is returned for lifecycle operations against a job whose
	// status does not permit them.
	ErrInvalidState = errors.New("invalid job state")
)
