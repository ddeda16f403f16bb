package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsSkipped  int     `json:"runs_skipped"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Venue extraction metrics aggregated from run summaries.
	VenuesAttempted  int     `json:"venues_attempted"`
	VenuesResolved   int     `json:"venues_resolved"`
	VenuesUnresolved int     `json:"venues_unresolved"`
	UnresolvedRate   float64 `json:"unresolved_rate"`
	FetchErrors      int     `json:"fetch_errors"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from recent run records.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of pipeline metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusSkipped:
			snap.RunsSkipped++
		}
		if r.Summary != nil {
			snap.VenuesResolved += r.Summary.Resolved()
			snap.VenuesUnresolved += r.Summary.Unresolved
			snap.VenuesAttempted += r.Summary.Resolved() + r.Summary.Unresolved
			snap.FetchErrors += r.Summary.FetchErrors
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.VenuesAttempted > 0 {
		snap.UnresolvedRate = float64(snap.VenuesUnresolved) / float64(snap.VenuesAttempted)
	}

	return snap, nil
}
