package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orbitworks/orbit/internal/domain"
)

// Scripted resolves tasks from a fixed result table keyed by description.
// Used for dry runs and integration tests where no real agent is wanted.
type Scripted struct {
	// Results maps a task description to its result summary. A missing entry
	// falls back to DefaultResult.
	Results map[string]string
	// Failures maps a task description to an error message.
	Failures map[string]string
	// DefaultResult is returned for tasks with no table entry.
	DefaultResult string
	// Delay simulates work per task.
	Delay time.Duration

	mu       sync.Mutex
	executed []string
}

func (s *Scripted) Execute(ctx context.Context, _ *domain.Job, task *domain.Task) (string, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	s.executed = append(s.executed, task.Description)
	s.mu.Unlock()

	if msg, ok := s.Failures[task.Description]; ok {
		return "", fmt.Errorf("%s", msg)
	}
	if result, ok := s.Results[task.Description]; ok {
		return result, nil
	}
	if s.DefaultResult != "" {
		return s.DefaultResult, nil
	}
	return "done: " + task.Description, nil
}

// Executed returns the descriptions of all tasks run so far, in settle order
func (s *Scripted) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.executed))
	copy(out, s.executed)
	return out
}
