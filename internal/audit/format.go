package audit

import (
	"fmt"
	"strings"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders entries as a human-readable text timeline.
// Entries arrive newest-first (log order) and are printed that way.
func FormatTimeline(entries []Entry) string {
	if len(entries) == 0 {
		return "No audit entries.\n"
	}

	var b strings.Builder

	first := entries[len(entries)-1].Timestamp
	last := entries[0].Timestamp
	b.WriteString(fmt.Sprintf("Audit log | %s–%s UTC | %d entries\n",
		first.Format("2006-01-02 15:04:05"), last.Format("15:04:05"), len(entries)))
	b.WriteString(separator + "\n")

	for _, e := range entries {
		ts := e.Timestamp.Format("15:04:05")
		actor := e.IdentityID
		if actor == "" {
			actor = "-"
		}
		tag := ""
		if len(e.LawsViolated) > 0 {
			tag = "  [" + strings.Join(e.LawsViolated, ",") + "]"
		}
		b.WriteString(fmt.Sprintf("%-10s %-22s %-14s %-8s %s%s\n",
			ts, e.Action, truncate(actor, 14), e.Source, truncate(e.Description, 44), tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(entries))
	return b.String()
}

func formatSummary(entries []Entry) string {
	counts := map[Action]int{}
	violations := 0
	for _, e := range entries {
		counts[e.Action]++
		violations += len(e.LawsViolated)
	}

	parts := []string{}
	for _, a := range []Action{
		ActionCheckpointCreated, ActionCheckpointApproved,
		ActionCheckpointRejected, ActionViolationDetected,
	} {
		if counts[a] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[a], a))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d entries", len(entries)))
	}
	return fmt.Sprintf("Summary: %s | laws violated: %d\n", strings.Join(parts, ", "), violations)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
