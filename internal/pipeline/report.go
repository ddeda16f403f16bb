package pipeline

import (
	"fmt"
	"strings"
)

// FormatReport renders the run outcome for the terminal. It is printed after
// every run, including failed and skipped ones.
func FormatReport(rep *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Refresh Run: %s\n", rep.Run.ID)
	fmt.Fprintf(&b, "Status: %s", rep.Run.Status)
	if rep.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")
	if rep.Run.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rep.Run.Error)
	}
	if rep.Skipped {
		b.WriteString("\nAnother run holds the pipeline lock; nothing was attempted.\n")
		return b.String()
	}

	s := rep.Run.Summary
	if s == nil {
		return b.String()
	}

	b.WriteString("\n## Fetch\n")
	fmt.Fprintf(&b, "- Venues: %d\n", s.VenuesTotal)
	fmt.Fprintf(&b, "- Fetched: %d\n", s.Fetched)
	fmt.Fprintf(&b, "- Errors: %d\n", s.FetchErrors)

	b.WriteString("\n## Changes\n")
	fmt.Fprintf(&b, "- New: %d\n", s.New)
	fmt.Fprintf(&b, "- Changed: %d\n", s.Changed)
	fmt.Fprintf(&b, "- Unchanged (skipped): %d\n", s.Unchanged)

	if !rep.DryRun {
		b.WriteString("\n## Extraction\n")
		fmt.Fprintf(&b, "- Tier 1 (pattern): %d\n", s.ResolvedTier1)
		fmt.Fprintf(&b, "- Tier 2 (content LLM): %d\n", s.ResolvedTier2)
		fmt.Fprintf(&b, "- Tier 3 (knowledge LLM): %d\n", s.ResolvedTier3)
		fmt.Fprintf(&b, "- Unresolved: %d\n", s.Unresolved)
	}

	if rep.Run.FinishedAt != nil {
		fmt.Fprintf(&b, "\nFinished: %s\n", rep.Run.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}
