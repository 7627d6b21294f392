// Package plan implements the default task discovery and plan maintenance
// strategy: the job's task list is a markdown checklist, and each cycle works
// through its unchecked items.
package plan

import (
	"regexp"
	"strings"

	"github.com/orbitworks/orbit/internal/domain"
)

var (
	// Checklist item: "- [ ] description" or "- [x] description", any indent.
	itemRegex = regexp.MustCompile(`^(\s*)- \[([ xX])\]\s+(.+)$`)

	// Inline annotations, stripped from the description:
	// [seq] forces sequential execution, (high)/(low) set priority.
	seqMarker      = regexp.MustCompile(`\s*\[seq\]\s*`)
	priorityMarker = regexp.MustCompile(`\s*\((high|low)\)\s*`)
)

// Item is one checklist entry with its annotations resolved
type Item struct {
	Description string
	Context     string
	Priority    domain.Priority
	Sequential  bool
	Done        bool

	indent int
}

// ParseChecklist extracts the checklist items from plan text. Indented
// non-checkbox lines under an item become its context; everything outside a
// checklist item (headings, prose) is ignored.
func ParseChecklist(text string) []Item {
	var items []Item

	for _, line := range strings.Split(text, "\n") {
		matches := itemRegex.FindStringSubmatch(line)
		if matches == nil {
			if len(items) == 0 {
				continue
			}
			// Continuation line for the last item: deeper indent, non-empty.
			last := &items[len(items)-1]
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || indentOf(line) <= last.indent {
				continue
			}
			if last.Context != "" {
				last.Context += "\n"
			}
			last.Context += trimmed
			continue
		}

		desc := matches[3]
		item := Item{
			indent: len(matches[1]),
			Done:   matches[2] != " ",
		}
		if seqMarker.MatchString(desc) {
			item.Sequential = true
			desc = seqMarker.ReplaceAllString(desc, " ")
		}
		if pm := priorityMarker.FindStringSubmatch(desc); pm != nil {
			switch pm[1] {
			case "high":
				item.Priority = domain.PriorityHigh
			case "low":
				item.Priority = domain.PriorityLow
			}
			desc = priorityMarker.ReplaceAllString(desc, " ")
		}
		item.Description = strings.TrimSpace(desc)
		if item.Description == "" {
			continue
		}
		items = append(items, item)
	}

	return items
}

// MarkDone returns the plan text with the item matching description checked
// off. Matching is on the visible description with annotations intact, so
// only the checkbox state changes.
func MarkDone(text, description string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		matches := itemRegex.FindStringSubmatch(line)
		if matches == nil || matches[2] != " " {
			continue
		}
		if normalizeDescription(matches[3]) == description {
			lines[i] = strings.Replace(line, "- [ ]", "- [x]", 1)
			break
		}
	}
	return strings.Join(lines, "\n")
}

// MarkFailed returns the plan text with a failure note recorded under the
// unchecked item matching description. The note becomes the item's context
// line, so the next attempt sees what went wrong. A note from an earlier
// attempt is replaced rather than stacked.
func MarkFailed(text, description, note string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		matches := itemRegex.FindStringSubmatch(line)
		if matches == nil || matches[2] != " " {
			continue
		}
		if normalizeDescription(matches[3]) != description {
			continue
		}

		itemIndent := len(matches[1])
		annotation := strings.Repeat(" ", itemIndent+2) + failurePrefix + note
		if i+1 < len(lines) && indentOf(lines[i+1]) > itemIndent &&
			strings.HasPrefix(strings.TrimSpace(lines[i+1]), failurePrefix) {
			lines[i+1] = annotation
			break
		}
		lines = append(lines[:i+1], append([]string{annotation}, lines[i+1:]...)...)
		break
	}
	return strings.Join(lines, "\n")
}

const failurePrefix = "failed: "

func normalizeDescription(raw string) string {
	raw = seqMarker.ReplaceAllString(raw, " ")
	raw = priorityMarker.ReplaceAllString(raw, " ")
	return strings.TrimSpace(raw)
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
