package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuewatch/refresh-cli/internal/config"
	"github.com/venuewatch/refresh-cli/internal/delta"
	"github.com/venuewatch/refresh-cli/internal/fetch"
	"github.com/venuewatch/refresh-cli/internal/lock"
	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/monitoring"
	"github.com/venuewatch/refresh-cli/internal/resilience"
	"github.com/venuewatch/refresh-cli/internal/snapshot"
	"github.com/venuewatch/refresh-cli/internal/store"
	"github.com/venuewatch/refresh-cli/pkg/anthropic"
)

// Report is everything a run produced, returned to the CLI for display. The
// Summary inside Run is populated even when the run aborts partway.
type Report struct {
	Run     model.Run
	Deltas  []model.DeltaRecord
	Results []model.ExtractionResult
	DryRun  bool
	Skipped bool // lock held elsewhere; nothing was attempted
}

// Pipeline runs the daily refresh: rotate snapshots, fetch venue pages,
// detect changes, and extract facts for the changed venues through the tier
// coordinator.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	snaps   snapshot.Store
	fetcher fetch.Fetcher
	coord   *Coordinator
	locks   *lock.FileLock
	alerter *monitoring.Alerter
	now     func() time.Time
}

// New wires a Pipeline from its collaborators.
func New(
	cfg *config.Config,
	st store.Store,
	snaps snapshot.Store,
	fetcher fetch.Fetcher,
	client anthropic.Client,
	locks *lock.FileLock,
	alerter *monitoring.Alerter,
) *Pipeline {
	backoff := resilience.NewBackoff(resilience.BackoffConfig{
		InitialWait: time.Duration(cfg.Backoff.InitialWaitSecs) * time.Second,
		MaxWait:     time.Duration(cfg.Backoff.MaxWaitSecs) * time.Second,
		Multiplier:  cfg.Backoff.Multiplier,
		MaxAttempts: cfg.Backoff.MaxAttempts,
	})
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		snaps:   snaps,
		fetcher: fetcher,
		coord:   NewCoordinator(cfg, snaps, client, backoff),
		locks:   locks,
		alerter: alerter,
		now:     time.Now,
	}
}

// Run executes one refresh run. With dryRun set it stops after change
// detection: no LLM calls, no results written. The returned Report carries a
// summary even on failure; an error means the run did not complete, not that
// nothing happened.
func (p *Pipeline) Run(ctx context.Context, venues []model.Venue, dryRun bool) (*Report, error) {
	log := zap.L().With(zap.String("pipeline", p.cfg.Pipeline.Name))

	acquired, holder, err := p.locks.Acquire(p.cfg.Pipeline.Name)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire lock")
	}
	if !acquired {
		log.Warn("pipeline: lock held, skipping run",
			zap.Int("holder_pid", holder.PID),
			zap.String("holder_host", holder.Hostname),
			zap.Duration("held_for", holder.Age(p.now())))
		return p.recordSkipped(ctx)
	}
	defer func() {
		if releaseErr := p.locks.Release(p.cfg.Pipeline.Name); releaseErr != nil {
			log.Warn("pipeline: release lock", zap.Error(releaseErr))
		}
	}()

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run", run.ID))
	log.Info("pipeline: run started", zap.Int("venues", len(venues)), zap.Bool("dry_run", dryRun))

	report := &Report{Run: *run, DryRun: dryRun}
	summary := &model.RunSummary{VenuesTotal: len(venues)}
	report.Run.Summary = summary

	fail := func(stage string, cause error) (*Report, error) {
		wrapped := eris.Wrap(cause, "pipeline: "+stage)
		p.finish(ctx, report, model.RunStatusFailed, wrapped.Error())
		return report, wrapped
	}

	if err := p.snaps.Rotate(p.now()); err != nil {
		return fail("rotate snapshots", err)
	}

	p.fetchAll(ctx, venues, summary)

	records, err := delta.NewDetector(p.snaps).Detect()
	if err != nil {
		return fail("detect changes", err)
	}
	report.Deltas = records
	for _, rec := range records {
		switch rec.Classification {
		case model.ClassificationNew:
			summary.New++
		case model.ClassificationChanged:
			summary.Changed++
		case model.ClassificationUnchanged:
			summary.Unchanged++
		}
	}

	if dryRun {
		log.Info("pipeline: dry run, stopping before extraction")
		p.finish(ctx, report, model.RunStatusComplete, "")
		return report, nil
	}

	queued := p.queuedVenues(venues, records)
	results, stats, extractErr := p.coord.Extract(ctx, run.ID, queued)
	report.Results = results
	summary.ResolvedTier1 = stats.Tier1
	summary.ResolvedTier2 = stats.Tier2
	summary.ResolvedTier3 = stats.Tier3
	summary.Unresolved = stats.Unresolved

	for _, res := range results {
		if err := p.store.SaveResult(ctx, res); err != nil {
			// One bad row should not discard the rest of the run's work.
			log.Error("pipeline: save result", zap.String("venue", res.VenueID), zap.Error(err))
		}
	}

	if extractErr != nil {
		return fail("extract", extractErr)
	}

	p.finish(ctx, report, model.RunStatusComplete, "")
	log.Info("pipeline: run complete",
		zap.Int("queued", len(queued)),
		zap.Int("resolved", summary.Resolved()),
		zap.Int("unresolved", summary.Unresolved))
	return report, nil
}

// fetchAll captures every venue's pages into the current generation. A venue
// whose fetch fails keeps its prior current snapshot, if any, and the run
// continues.
func (p *Pipeline) fetchAll(ctx context.Context, venues []model.Venue, summary *model.RunSummary) {
	for _, v := range venues {
		pages, err := p.fetcher.FetchVenue(ctx, v)
		if err != nil {
			summary.FetchErrors++
			zap.L().Warn("pipeline: fetch failed", zap.String("venue", v.ID), zap.Error(err))
			continue
		}
		if err := p.snaps.Write(v.ID, pages); err != nil {
			summary.FetchErrors++
			zap.L().Error("pipeline: write snapshot", zap.String("venue", v.ID), zap.Error(err))
			continue
		}
		summary.Fetched++
	}
}

// queuedVenues resolves the work queue's venue IDs back to registry venues,
// preserving queue order. IDs without a registry entry are dropped; they can
// appear when the registry shrank since the snapshot was written.
func (p *Pipeline) queuedVenues(venues []model.Venue, records []model.DeltaRecord) []model.Venue {
	byID := make(map[string]model.Venue, len(venues))
	for _, v := range venues {
		byID[v.ID] = v
	}
	var queued []model.Venue
	for _, rec := range delta.Queue(records) {
		v, ok := byID[rec.VenueID]
		if !ok {
			zap.L().Warn("pipeline: queued venue not in registry", zap.String("venue", rec.VenueID))
			continue
		}
		queued = append(queued, v)
	}
	return queued
}

// finish persists the terminal run state and pushes the run summary to the
// monitoring webhook. Failures here are logged, not returned; the run's
// outcome is already decided.
func (p *Pipeline) finish(ctx context.Context, report *Report, status model.RunStatus, errMsg string) {
	report.Run.Status = status
	report.Run.Error = errMsg
	finishedAt := p.now().UTC()
	report.Run.FinishedAt = &finishedAt

	if err := p.store.FinishRun(ctx, report.Run.ID, status, report.Run.Summary, errMsg); err != nil {
		zap.L().Error("pipeline: finish run", zap.String("run", report.Run.ID), zap.Error(err))
	}
	if p.alerter != nil {
		p.alerter.NotifyRunFinished(ctx, report.Run)
	}
}

// recordSkipped persists a skipped-run marker so schedules that silently
// collide remain visible in run history.
func (p *Pipeline) recordSkipped(ctx context.Context) (*Report, error) {
	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create skipped run")
	}
	report := &Report{Run: *run, Skipped: true}
	p.finish(ctx, report, model.RunStatusSkipped, "pipeline lock held by another run")
	return report, nil
}
