package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuewatch/refresh-cli/internal/config"
	"github.com/venuewatch/refresh-cli/internal/lock"
	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/monitoring"
	"github.com/venuewatch/refresh-cli/internal/snapshot"
	"github.com/venuewatch/refresh-cli/internal/store"
)

// fakeFetcher serves canned pages per venue ID and fails venues listed in
// failing.
type fakeFetcher struct {
	pages   map[string]string
	failing map[string]bool
	calls   int
}

func (f *fakeFetcher) FetchVenue(_ context.Context, v model.Venue) ([]model.Page, error) {
	f.calls++
	if f.failing[v.ID] {
		return nil, errors.New("fetch: connection refused")
	}
	text, ok := f.pages[v.ID]
	if !ok {
		text = noHoursText
	}
	return []model.Page{{URL: v.URLs[0], Text: text, CapturedAt: time.Now().UTC()}}, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	snaps    *snapshot.MemStore
	store    store.Store
	client   *fakeClient
	fetcher  *fakeFetcher
	locks    *lock.FileLock
	cfg      *config.Config
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	cfg := testConfig()
	cfg.Backoff = config.BackoffConfig{InitialWaitSecs: 1, MaxWaitSecs: 2, Multiplier: 1.5, MaxAttempts: 3}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "refresh.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	snaps := snapshot.NewMemStore()
	client := &fakeClient{}
	fetcher := &fakeFetcher{pages: map[string]string{}, failing: map[string]bool{}}
	locks := lock.New(t.TempDir())
	alerter := monitoring.NewAlerter(config.MonitoringConfig{})

	return &pipelineFixture{
		pipeline: New(cfg, st, snaps, fetcher, client, locks, alerter),
		snaps:    snaps,
		store:    st,
		client:   client,
		fetcher:  fetcher,
		locks:    locks,
		cfg:      cfg,
	}
}

func testVenues(ids ...string) []model.Venue {
	venues := make([]model.Venue, len(ids))
	for i, id := range ids {
		venues[i] = model.Venue{ID: id, Name: id, URLs: []string{"https://" + id + ".test"}}
	}
	return venues
}

func TestRun_FirstRunResolvesNewVenues(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText

	report, err := fx.pipeline.Run(context.Background(), testVenues("tavern"), false)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, report.Run.Status)
	s := report.Run.Summary
	require.NotNil(t, s)
	assert.Equal(t, 1, s.VenuesTotal)
	assert.Equal(t, 1, s.Fetched)
	assert.Equal(t, 1, s.New)
	assert.Equal(t, 1, s.ResolvedTier1)
	assert.Equal(t, 0, s.Unresolved)
	assert.Equal(t, 0, fx.client.callCount())

	// The result and the run record are durable.
	saved, err := fx.store.GetResult(context.Background(), "tavern")
	require.NoError(t, err)
	assert.Equal(t, report.Run.ID, saved.RunID)
	assert.Equal(t, model.TierDeterministic, saved.Tier)

	run, err := fx.store.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 1, run.Summary.ResolvedTier1)
}

func TestRun_UnchangedVenueSkipsExtraction(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText
	fx.snaps.SeedPrevious("tavern", []model.Page{
		{URL: "https://tavern.test", Text: fullWeekText, CapturedAt: time.Now().UTC()},
	})

	report, err := fx.pipeline.Run(context.Background(), testVenues("tavern"), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Run.Summary.Unchanged)
	assert.Equal(t, 0, report.Run.Summary.New)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, fx.client.callCount(), "unchanged venues must never reach extraction")

	_, err = fx.store.GetResult(context.Background(), "tavern")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRun_ChangedVenueIsReprocessed(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText
	fx.snaps.SeedPrevious("tavern", []model.Page{
		{URL: "https://tavern.test", Text: "Old hours: Mon-Tue 8am-2pm", CapturedAt: time.Now().UTC()},
	})

	report, err := fx.pipeline.Run(context.Background(), testVenues("tavern"), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Run.Summary.Changed)
	assert.Equal(t, 1, report.Run.Summary.ResolvedTier1)
	require.Len(t, report.Results, 1)
}

func TestRun_DryRunStopsBeforeExtraction(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText

	report, err := fx.pipeline.Run(context.Background(), testVenues("tavern"), true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, model.RunStatusComplete, report.Run.Status)
	assert.Equal(t, 1, report.Run.Summary.New)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, fx.client.callCount())

	_, err = fx.store.GetResult(context.Background(), "tavern")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRun_LockHeldRecordsSkippedRun(t *testing.T) {
	fx := newPipelineFixture(t)
	acquired, _, err := fx.locks.Acquire(fx.cfg.Pipeline.Name)
	require.NoError(t, err)
	require.True(t, acquired)

	report, err := fx.pipeline.Run(context.Background(), testVenues("tavern"), false)
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.Equal(t, model.RunStatusSkipped, report.Run.Status)
	assert.Equal(t, 0, fx.fetcher.calls)

	run, err := fx.store.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSkipped, run.Status)
}

func TestRun_ReleasesLockOnCompletion(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText

	_, err := fx.pipeline.Run(context.Background(), testVenues("tavern"), false)
	require.NoError(t, err)

	acquired, _, err := fx.locks.Acquire(fx.cfg.Pipeline.Name)
	require.NoError(t, err)
	assert.True(t, acquired, "lock must be released after the run")
}

func TestRun_FetchErrorCountsAndContinues(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText
	fx.fetcher.failing["broken"] = true

	report, err := fx.pipeline.Run(context.Background(), testVenues("tavern", "broken"), false)
	require.NoError(t, err)

	s := report.Run.Summary
	assert.Equal(t, 2, s.VenuesTotal)
	assert.Equal(t, 1, s.Fetched)
	assert.Equal(t, 1, s.FetchErrors)
	assert.Equal(t, model.RunStatusComplete, report.Run.Status)
	assert.Equal(t, 1, s.ResolvedTier1)
}

func TestRun_NextDayIdenticalContentDoesNoExtraction(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.fetcher.pages["tavern"] = fullWeekText
	venues := testVenues("tavern")

	first, err := fx.pipeline.Run(context.Background(), venues, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.Run.Summary.ResolvedTier1)

	// Next day rotation establishes the baseline; identical content then
	// compares unchanged and extraction is skipped entirely.
	fx.pipeline.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	second, err := fx.pipeline.Run(context.Background(), venues, false)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Run.Summary.Unchanged)
	assert.Equal(t, 0, second.Run.Summary.Resolved())
}

func TestFormatReport_Complete(t *testing.T) {
	finished := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	rep := &Report{
		Run: model.Run{
			ID:     "run-42",
			Status: model.RunStatusComplete,
			Summary: &model.RunSummary{
				VenuesTotal: 10, Fetched: 9, FetchErrors: 1,
				New: 2, Changed: 3, Unchanged: 4,
				ResolvedTier1: 2, ResolvedTier2: 2, ResolvedTier3: 1,
			},
			FinishedAt: &finished,
		},
	}

	out := FormatReport(rep)
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "Status: complete")
	assert.Contains(t, out, "Unchanged (skipped): 4")
	assert.Contains(t, out, "Tier 1 (pattern): 2")
	assert.Contains(t, out, "Unresolved: 0")
}

func TestFormatReport_Skipped(t *testing.T) {
	rep := &Report{
		Run:     model.Run{ID: "run-43", Status: model.RunStatusSkipped},
		Skipped: true,
	}
	out := FormatReport(rep)
	assert.Contains(t, out, "Status: skipped")
	assert.Contains(t, out, "pipeline lock")
}

func TestFormatReport_DryRunOmitsExtraction(t *testing.T) {
	rep := &Report{
		Run: model.Run{
			ID:      "run-44",
			Status:  model.RunStatusComplete,
			Summary: &model.RunSummary{VenuesTotal: 3, New: 3},
		},
		DryRun: true,
	}
	out := FormatReport(rep)
	assert.Contains(t, out, "(dry run)")
	assert.NotContains(t, out, "Extraction")
}
