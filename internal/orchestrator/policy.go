package orchestrator

import (
	"time"

	"github.com/orbitworks/orbit/internal/domain"
)

// EvaluateTermination decides whether a job should stop looping. Pure: the
// caller supplies the clock.
//
// TimeLimitMinutes is measured from the first start; pausing and resuming
// does not restart the clock.
func EvaluateTermination(job *domain.Job, now time.Time) (domain.TerminationReason, bool) {
	if job.MaxCycles > 0 && job.CurrentCycle >= job.MaxCycles {
		return domain.ReasonMaxCycles, true
	}
	if job.TimeLimitMinutes > 0 && job.StartedAt != nil {
		elapsed := now.Sub(*job.StartedAt)
		if elapsed >= time.Duration(job.TimeLimitMinutes)*time.Minute {
			return domain.ReasonTimeLimit, true
		}
	}
	return "", false
}
