package model

import "time"

// RunStatus tracks a pipeline run's lifecycle in the store.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusSkipped  RunStatus = "skipped" // lock held by another run
)

// RunSummary is the per-run accounting printed and logged at the end of
// every run, including aborted ones, so operators can see how far it got.
type RunSummary struct {
	VenuesTotal int `json:"venues_total"`
	Fetched     int `json:"fetched"`

	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`

	ResolvedTier1 int `json:"resolved_tier1"`
	ResolvedTier2 int `json:"resolved_tier2"`
	ResolvedTier3 int `json:"resolved_tier3"`
	Unresolved    int `json:"unresolved"`

	FetchErrors int `json:"fetch_errors"`
}

// Resolved returns the total number of venues resolved at any tier.
func (s RunSummary) Resolved() int {
	return s.ResolvedTier1 + s.ResolvedTier2 + s.ResolvedTier3
}

// Run is a persisted pipeline run record.
type Run struct {
	ID         string      `json:"id"`
	Status     RunStatus   `json:"status"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}
