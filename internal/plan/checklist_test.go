package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitworks/orbit/internal/domain"
	"github.com/orbitworks/orbit/internal/orchestrator"
)

const samplePlan = `# Release plan

Some prose that is not a task.

- [ ] add login endpoint (high)
  Needs the session table from last sprint.
  Coordinate with the auth team.
- [x] scaffold project
- [ ] run database migration [seq]
- [ ] update readme (low)
- [ ] polish error messages
`

func TestParseChecklist(t *testing.T) {
	items := ParseChecklist(samplePlan)
	require.Len(t, items, 5)

	assert.Equal(t, "add login endpoint", items[0].Description)
	assert.Equal(t, domain.PriorityHigh, items[0].Priority)
	assert.False(t, items[0].Sequential)
	assert.False(t, items[0].Done)
	assert.Equal(t, "Needs the session table from last sprint.\nCoordinate with the auth team.", items[0].Context)

	assert.Equal(t, "scaffold project", items[1].Description)
	assert.True(t, items[1].Done)

	assert.Equal(t, "run database migration", items[2].Description)
	assert.True(t, items[2].Sequential)

	assert.Equal(t, domain.PriorityLow, items[3].Priority)
	assert.Equal(t, domain.PriorityNormal, items[4].Priority)
}

func TestParseChecklistEmpty(t *testing.T) {
	assert.Empty(t, ParseChecklist(""))
	assert.Empty(t, ParseChecklist("# heading only\n\nprose\n"))
}

func TestMarkDone(t *testing.T) {
	updated := MarkDone(samplePlan, "run database migration")

	items := ParseChecklist(updated)
	require.Len(t, items, 5)
	assert.True(t, items[2].Done)
	assert.False(t, items[0].Done, "other items untouched")

	// Unknown description leaves the text unchanged.
	assert.Equal(t, updated, MarkDone(updated, "no such task"))
}

func TestMarkDoneOnlyFirstMatch(t *testing.T) {
	text := "- [ ] repeat\n- [ ] repeat\n"
	updated := MarkDone(text, "repeat")

	items := ParseChecklist(updated)
	require.Len(t, items, 2)
	assert.True(t, items[0].Done)
	assert.False(t, items[1].Done)
}

func TestDiscovererOrdersByPriority(t *testing.T) {
	d := &Discoverer{}
	specs, err := d.Discover(context.Background(), orchestrator.DiscoveryContext{TaskList: samplePlan})
	require.NoError(t, err)
	require.Len(t, specs, 4, "done item skipped")

	assert.Equal(t, "add login endpoint", specs[0].Description)
	assert.Equal(t, "run database migration", specs[1].Description)
	assert.False(t, specs[1].Parallel)
	assert.Equal(t, "polish error messages", specs[2].Description)
	assert.Equal(t, "update readme", specs[3].Description, "low priority sinks")
}

func TestDiscovererCap(t *testing.T) {
	d := &Discoverer{MaxTasksPerCycle: 2}
	specs, err := d.Discover(context.Background(), orchestrator.DiscoveryContext{TaskList: samplePlan})
	require.NoError(t, err)
	assert.Len(t, specs, 2)
}

func TestSummarizer(t *testing.T) {
	s := Summarizer{}
	summary, err := s.Summarize(context.Background(),
		[]orchestrator.TaskOutcome{{Description: "add login endpoint", ResultSummary: "merged\ndetails"}},
		[]orchestrator.TaskOutcome{{Description: "update readme", ErrorMessage: "conflict"}})
	require.NoError(t, err)

	assert.Contains(t, summary, "1 completed, 1 failed.")
	assert.Contains(t, summary, "Done: add login endpoint (merged)")
	assert.Contains(t, summary, "Failed: update readme (conflict)")
}

func TestMarkFailed(t *testing.T) {
	updated := MarkFailed(samplePlan, "update readme", "merge conflict")

	items := ParseChecklist(updated)
	require.Len(t, items, 5)
	assert.False(t, items[3].Done)
	assert.Equal(t, "failed: merge conflict", items[3].Context)

	// A later failure replaces the note instead of stacking.
	updated = MarkFailed(updated, "update readme", "still conflicting")
	items = ParseChecklist(updated)
	assert.Equal(t, "failed: still conflicting", items[3].Context)

	// Existing context lines survive, the note lands first.
	updated = MarkFailed(samplePlan, "add login endpoint", "timeout")
	items = ParseChecklist(updated)
	assert.Equal(t, "failed: timeout\nNeeds the session table from last sprint.\nCoordinate with the auth team.", items[0].Context)

	// Unknown description leaves the text unchanged.
	assert.Equal(t, samplePlan, MarkFailed(samplePlan, "no such task", "x"))
}

func TestSummarizerUpdateTaskList(t *testing.T) {
	s := Summarizer{}
	updated, err := s.UpdateTaskList(context.Background(), samplePlan,
		[]orchestrator.TaskOutcome{{Description: "add login endpoint"}},
		[]orchestrator.TaskOutcome{{Description: "update readme", ErrorMessage: "conflict\nlong trace"}},
		"")
	require.NoError(t, err)

	items := ParseChecklist(updated)
	assert.True(t, items[0].Done, "completed item checked off")
	assert.False(t, items[3].Done, "failed item stays open for the next cycle")
	assert.Equal(t, "failed: conflict", items[3].Context, "failure annotated for the retry")

	// The annotated item is rediscovered with the failure as its context.
	d := &Discoverer{}
	specs, err := d.Discover(context.Background(), orchestrator.DiscoveryContext{TaskList: updated})
	require.NoError(t, err)
	for _, spec := range specs {
		if spec.Description == "update readme" {
			assert.Equal(t, "failed: conflict", spec.Context)
			return
		}
	}
	t.Fatal("failed item not rediscovered")
}
