package plan

import (
	"context"
	"sort"

	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/orchestrator"
)

// Discoverer proposes the unchecked checklist items of the job's plan as the
// next cycle's tasks. High-priority items are hoisted to the front; the sort
// is stable so document order is otherwise preserved.
type Discoverer struct {
	// MaxTasksPerCycle caps how many items one cycle takes on. Zero means
	// no cap.
	MaxTasksPerCycle int
}

func (d *Discoverer) Discover(_ context.Context, dc orchestrator.DiscoveryContext) ([]orchestrator.TaskSpec, error) {
	items := ParseChecklist(dc.TaskList)

	var open []Item
	for _, it := range items {
		if !it.Done {
			open = append(open, it)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return rank(open[i].Priority) < rank(open[j].Priority)
	})
	if d.MaxTasksPerCycle > 0 && len(open) > d.MaxTasksPerCycle {
		open = open[:d.MaxTasksPerCycle]
	}

	specs := make([]orchestrator.TaskSpec, 0, len(open))
	for _, it := range open {
		specs = append(specs, orchestrator.TaskSpec{
			Description: it.Description,
			Context:     it.Context,
			Priority:    it.Priority,
			Parallel:    !it.Sequential,
		})
	}
	return specs, nil
}

func rank(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 0
	case domain.PriorityLow:
		return 2
	default:
		return 1
	}
}
