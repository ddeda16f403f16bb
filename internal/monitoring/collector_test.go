package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/store"
)

// fakeStore serves canned run records for collector tests.
type fakeStore struct {
	store.Store
	runs []model.Run
}

func (f *fakeStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	return f.runs, nil
}

func run(status model.RunStatus, age time.Duration, summary *model.RunSummary) model.Run {
	return model.Run{
		ID:        "run-" + string(status),
		Status:    status,
		Summary:   summary,
		StartedAt: time.Now().UTC().Add(-age),
	}
}

func TestCollect_AggregatesRecentRuns(t *testing.T) {
	st := &fakeStore{runs: []model.Run{
		run(model.RunStatusComplete, time.Hour, &model.RunSummary{
			ResolvedTier1: 3, ResolvedTier2: 1, Unresolved: 1, FetchErrors: 2,
		}),
		run(model.RunStatusFailed, 2*time.Hour, nil),
		run(model.RunStatusSkipped, 3*time.Hour, nil),
	}}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsSkipped)
	assert.InDelta(t, 0.5, snap.RunFailRate, 0.001)

	assert.Equal(t, 4, snap.VenuesResolved)
	assert.Equal(t, 1, snap.VenuesUnresolved)
	assert.Equal(t, 5, snap.VenuesAttempted)
	assert.InDelta(t, 0.2, snap.UnresolvedRate, 0.001)
	assert.Equal(t, 2, snap.FetchErrors)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollect_ExcludesRunsOutsideWindow(t *testing.T) {
	st := &fakeStore{runs: []model.Run{
		run(model.RunStatusComplete, time.Hour, nil),
		run(model.RunStatusFailed, 48*time.Hour, nil),
	}}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.RunsTotal)
	assert.Zero(t, snap.RunsFailed)
}

func TestCollect_EmptyStore(t *testing.T) {
	snap, err := NewCollector(&fakeStore{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.UnresolvedRate)
}
