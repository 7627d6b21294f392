package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/orbitworks/orbit/internal/orchestrator"
)

// Summarizer produces plain-text cycle summaries and rewrites the plan after
// each cycle: completed items are checked off, failed items stay unchecked
// with a failure note so a later cycle retries them with that context.
type Summarizer struct{}

func (Summarizer) Summarize(_ context.Context, completed, failed []orchestrator.TaskOutcome) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d completed, %d failed.", len(completed), len(failed))

	for _, o := range completed {
		b.WriteString("\nDone: " + o.Description)
		if o.ResultSummary != "" {
			b.WriteString(" (" + firstLine(o.ResultSummary) + ")")
		}
	}
	for _, o := range failed {
		b.WriteString("\nFailed: " + o.Description)
		if o.ErrorMessage != "" {
			b.WriteString(" (" + firstLine(o.ErrorMessage) + ")")
		}
	}
	return b.String(), nil
}

func (Summarizer) UpdateTaskList(_ context.Context, oldTaskList string, completed, failed []orchestrator.TaskOutcome, _ string) (string, error) {
	updated := oldTaskList
	for _, o := range completed {
		updated = MarkDone(updated, o.Description)
	}
	for _, o := range failed {
		note := firstLine(o.ErrorMessage)
		if note == "" {
			note = "no error recorded"
		}
		updated = MarkFailed(updated, o.Description, note)
	}
	return updated, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
