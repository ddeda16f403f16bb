// Package pipeline orchestrates the daily refresh run: snapshot rotation,
// fetching, change detection, and tiered fact extraction.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/venuewatch/refresh-cli/internal/config"
	"github.com/venuewatch/refresh-cli/internal/extract"
	"github.com/venuewatch/refresh-cli/internal/fingerprint"
	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/resilience"
	"github.com/venuewatch/refresh-cli/internal/snapshot"
	"github.com/venuewatch/refresh-cli/pkg/anthropic"
)

// llmMaxTokens bounds LLM responses. Tier 3 batch answers are the largest
// payloads; hours for eight venues fit comfortably.
const llmMaxTokens = 4096

// TierStats counts how each queued venue resolved during one run.
type TierStats struct {
	Tier1      int
	Tier2      int
	Tier3      int
	Unresolved int
}

// Coordinator walks queued venues through the three extraction tiers in
// strict tier order: every venue gets its tier 1 attempt before any venue
// gets a tier 2 call. Cheap attempts for the whole queue come before any
// expensive ones.
type Coordinator struct {
	cfg     *config.Config
	snaps   snapshot.Store
	client  anthropic.Client
	backoff *resilience.Backoff
	limiter *rate.Limiter
	now     func() time.Time
}

// NewCoordinator wires a Coordinator. The backoff instance is shared across
// tiers so consecutive rate limits escalate one window regardless of which
// tier saw them.
func NewCoordinator(cfg *config.Config, snaps snapshot.Store, client anthropic.Client, backoff *resilience.Backoff) *Coordinator {
	perMinute := cfg.Pipeline.LLMCallsPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	return &Coordinator{
		cfg:     cfg,
		snaps:   snaps,
		client:  client,
		backoff: backoff,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), 1),
		now:     time.Now,
	}
}

// venueWork tracks one venue through the tiers for the duration of a run.
type venueWork struct {
	venue model.Venue
	state model.VenueState
}

// Extract resolves facts for the queued venues. It returns results for every
// venue that resolved at some tier; venues that exhausted all three tiers are
// counted in stats.Unresolved. The only fatal error is an exhausted
// rate-limit budget (or context cancellation): results accumulated before the
// abort are still returned so the caller can persist partial progress.
func (c *Coordinator) Extract(ctx context.Context, runID string, venues []model.Venue) ([]model.ExtractionResult, TierStats, error) {
	work := make([]*venueWork, 0, len(venues))
	for _, v := range venues {
		work = append(work, &venueWork{venue: v, state: model.StatePending})
	}

	var results []model.ExtractionResult
	var stats TierStats

	for _, w := range work {
		if res, ok := c.tier1(runID, w); ok {
			results = append(results, res)
			stats.Tier1++
		}
	}

	for _, w := range work {
		if w.state == model.StateResolved {
			continue
		}
		res, ok, err := c.tier2(ctx, runID, w)
		if err != nil {
			return results, c.finishStats(work, stats), err
		}
		if ok {
			results = append(results, res)
			stats.Tier2++
		}
	}

	tier3Results, tier3Count, err := c.tier3(ctx, runID, work)
	results = append(results, tier3Results...)
	stats.Tier3 = tier3Count
	if err != nil {
		return results, c.finishStats(work, stats), err
	}

	return results, c.finishStats(work, stats), nil
}

// finishStats marks venues that fell through every tier and tallies them.
func (c *Coordinator) finishStats(work []*venueWork, stats TierStats) TierStats {
	for _, w := range work {
		if w.state != model.StateResolved {
			w.state = model.StateUnresolved
			stats.Unresolved++
		}
	}
	return stats
}

// tier1 runs the deterministic extractor against the venue's current
// snapshot. It resolves only when pattern matching covers enough of the week
// to trust; partial matches escalate rather than storing a thin result.
func (c *Coordinator) tier1(runID string, w *venueWork) (model.ExtractionResult, bool) {
	log := zap.L().With(zap.String("venue", w.venue.ID))

	snap, err := c.snaps.Read(w.venue.ID, model.GenerationCurrent)
	if err != nil {
		log.Warn("tier1: current snapshot unreadable", zap.Error(err))
		w.state = model.StateTier1Attempted
		return model.ExtractionResult{}, false
	}

	var b strings.Builder
	for i, p := range snap.Pages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	w.state = model.StateTier1Attempted

	facts, ok := extract.Facts(fingerprint.Normalize(b.String()))
	if !ok || facts.HoursCovered() < c.cfg.Pipeline.HoursThreshold {
		log.Info("tier1: below threshold, escalating",
			zap.Int("hours_covered", facts.HoursCovered()),
			zap.Int("threshold", c.cfg.Pipeline.HoursThreshold))
		return model.ExtractionResult{}, false
	}

	log.Info("tier1: resolved", zap.Int("hours_covered", facts.HoursCovered()))
	w.state = model.StateResolved
	return model.ExtractionResult{
		VenueID: w.venue.ID,
		Tier:    model.TierDeterministic,
		Facts:   facts,
		Provenance: model.Provenance{
			Tier:   model.TierDeterministic,
			Source: "pattern",
		},
		RunID:       runID,
		ExtractedAt: c.now().UTC(),
	}, true
}

// tier2 asks the cheap model to extract facts grounded in the venue's own
// page text. Malformed responses escalate to tier 3 instead of failing the
// venue.
func (c *Coordinator) tier2(ctx context.Context, runID string, w *venueWork) (model.ExtractionResult, bool, error) {
	log := zap.L().With(zap.String("venue", w.venue.ID))
	w.state = model.StateTier2Attempted

	snap, err := c.snaps.Read(w.venue.ID, model.GenerationCurrent)
	if err != nil {
		log.Warn("tier2: current snapshot unreadable", zap.Error(err))
		return model.ExtractionResult{}, false, nil
	}

	// The prompt carries normalized text so the model sees the same content
	// the fingerprint hashed, minus render noise.
	pages := make([]model.Page, len(snap.Pages))
	for i, p := range snap.Pages {
		p.Text = fingerprint.Normalize(p.Text)
		pages[i] = p
	}

	resp, err := c.callLLM(ctx, anthropic.MessageRequest{
		Model:     c.cfg.Anthropic.HaikuModel,
		MaxTokens: llmMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(contentSystemText),
		Messages: []anthropic.Message{
			{Role: "user", Content: contentPrompt(w.venue, pages)},
		},
	})
	if err != nil {
		if isRunFatal(ctx, err) {
			return model.ExtractionResult{}, false, err
		}
		log.Warn("tier2: call failed, escalating", zap.Error(err))
		return model.ExtractionResult{}, false, nil
	}
	resp.Usage.LogCost(c.cfg.Anthropic.HaikuModel, "tier2_extract")

	facts, found, err := parseContentResponse(resp.Text())
	if err != nil {
		log.Warn("tier2: unparseable response, escalating", zap.Error(err))
		return model.ExtractionResult{}, false, nil
	}
	if !found {
		log.Info("tier2: nothing found, escalating")
		return model.ExtractionResult{}, false, nil
	}

	log.Info("tier2: resolved", zap.Int("hours_covered", facts.HoursCovered()))
	w.state = model.StateResolved
	return model.ExtractionResult{
		VenueID: w.venue.ID,
		Tier:    model.TierContentLLM,
		Facts:   facts,
		Provenance: model.Provenance{
			Tier:          model.TierContentLLM,
			Source:        "llm-content",
			PromptVersion: contentPromptVersion,
			Model:         c.cfg.Anthropic.HaikuModel,
		},
		RunID:       runID,
		ExtractedAt: c.now().UTC(),
	}, true, nil
}

// tier3 batches the remaining venues through the knowledge model. Answers
// are correlated back to venues by batch-relative index; an index outside
// the batch is discarded, never misattributed to another venue.
func (c *Coordinator) tier3(ctx context.Context, runID string, work []*venueWork) ([]model.ExtractionResult, int, error) {
	var pending []*venueWork
	for _, w := range work {
		if w.state != model.StateResolved {
			pending = append(pending, w)
		}
	}
	if len(pending) == 0 {
		return nil, 0, nil
	}

	batchSize := c.cfg.Pipeline.Tier3BatchSize
	if batchSize <= 0 {
		batchSize = 8
	}

	var results []model.ExtractionResult
	count := 0
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		batchResults, err := c.tier3Batch(ctx, runID, batch)
		results = append(results, batchResults...)
		count += len(batchResults)
		if err != nil {
			return results, count, err
		}
	}
	return results, count, nil
}

func (c *Coordinator) tier3Batch(ctx context.Context, runID string, batch []*venueWork) ([]model.ExtractionResult, error) {
	venues := make([]model.Venue, len(batch))
	for i, w := range batch {
		venues[i] = w.venue
		w.state = model.StateTier3Attempted
	}

	resp, err := c.callLLM(ctx, anthropic.MessageRequest{
		Model:     c.cfg.Anthropic.SonnetModel,
		MaxTokens: llmMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(knowledgeSystemText),
		Messages: []anthropic.Message{
			{Role: "user", Content: knowledgePrompt(venues)},
		},
	})
	if err != nil {
		if isRunFatal(ctx, err) {
			return nil, err
		}
		zap.L().Warn("tier3: batch call failed", zap.Error(err))
		return nil, nil
	}
	resp.Usage.LogCost(c.cfg.Anthropic.SonnetModel, "tier3_extract")

	answers, err := parseKnowledgeResponse(resp.Text())
	if err != nil {
		// Last tier: nothing to escalate to. The whole batch stays unresolved.
		zap.L().Warn("tier3: unparseable batch response", zap.Error(err))
		return nil, nil
	}

	var results []model.ExtractionResult
	seen := make(map[int]bool, len(answers))
	for _, ans := range answers {
		if ans.Index < 0 || ans.Index >= len(batch) {
			zap.L().Warn("tier3: answer index out of range",
				zap.Int("index", ans.Index), zap.Int("batch_size", len(batch)))
			continue
		}
		if seen[ans.Index] {
			zap.L().Warn("tier3: duplicate answer index", zap.Int("index", ans.Index))
			continue
		}
		seen[ans.Index] = true

		w := batch[ans.Index]
		if !ans.Found {
			continue
		}
		facts := ans.facts()
		if facts.HoursCovered() == 0 {
			continue
		}

		zap.L().Info("tier3: resolved",
			zap.String("venue", w.venue.ID),
			zap.Int("hours_covered", facts.HoursCovered()))
		w.state = model.StateResolved
		results = append(results, model.ExtractionResult{
			VenueID: w.venue.ID,
			Tier:    model.TierKnowledgeLLM,
			Facts:   facts,
			Provenance: model.Provenance{
				Tier:          model.TierKnowledgeLLM,
				Source:        "llm-knowledge",
				PromptVersion: knowledgePromptVersion,
				Model:         c.cfg.Anthropic.SonnetModel,
			},
			RunID:       runID,
			ExtractedAt: c.now().UTC(),
		})
	}
	return results, nil
}

// isRunFatal reports whether an extraction call error should abort the whole
// run rather than leave one venue unresolved. A deadline on a single LLM call
// escalates the venue like any other miss; only an exhausted rate-limit
// budget or a dead run context aborts.
func isRunFatal(ctx context.Context, err error) bool {
	return errors.Is(err, resilience.ErrBudgetExhausted) || ctx.Err() != nil
}

// callLLM makes one rate-limited API call. A rate-limit response suspends
// the run via the shared backoff and the same call is retried; the venue is
// never marked unresolved because of quota pressure. Any other error from a
// single call is also not run-fatal, but surfaces so the caller can decide.
func (c *Coordinator) callLLM(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm pacing")
		}

		resp, err := c.client.CreateMessage(ctx, req)
		if err == nil {
			c.backoff.Reset()
			return resp, nil
		}
		if !resilience.IsRateLimit(err) {
			return nil, err
		}

		// Backoff logs the suspension; the same request is retried after.
		if waitErr := c.backoff.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}
	}
}
