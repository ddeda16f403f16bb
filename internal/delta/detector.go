// Package delta classifies venues as new, changed, or unchanged by comparing
// current-generation snapshots against the previous generation. Unchanged
// venues are excluded from the work queue entirely; skipping them is the
// pipeline's core cost-saving behavior.
package delta

import (
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/venuewatch/refresh-cli/internal/fingerprint"
	"github.com/venuewatch/refresh-cli/internal/model"
	"github.com/venuewatch/refresh-cli/internal/snapshot"
)

// Detector diffs the two snapshot generations.
type Detector struct {
	snapshots snapshot.Store
}

// NewDetector creates a Detector over the given snapshot store.
func NewDetector(s snapshot.Store) *Detector {
	return &Detector{snapshots: s}
}

// Detect classifies every venue present in the current generation, in sorted
// venue-ID order. Venues absent from current produce no record; removal
// handling belongs to the registry, not the pipeline.
func (d *Detector) Detect() ([]model.DeltaRecord, error) {
	ids, err := d.snapshots.List(model.GenerationCurrent)
	if err != nil {
		return nil, eris.Wrap(err, "delta: list current generation")
	}

	records := make([]model.DeltaRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := d.classify(id)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d *Detector) classify(venueID string) (model.DeltaRecord, bool) {
	log := zap.L().With(zap.String("venue", venueID))

	cur, err := d.snapshots.Read(venueID, model.GenerationCurrent)
	if err != nil {
		// Listed but unreadable: the store already downgraded corruption to
		// not-found, which means this venue needs a re-fetch next run.
		log.Warn("delta: current snapshot unreadable, skipping", zap.Error(err))
		return model.DeltaRecord{}, false
	}

	prev, err := d.snapshots.Read(venueID, model.GenerationPrevious)
	if errors.Is(err, snapshot.ErrNotFound) {
		log.Info("delta: classified", zap.String("classification", string(model.ClassificationNew)))
		return model.DeltaRecord{
			VenueID:        venueID,
			Classification: model.ClassificationNew,
		}, true
	}
	if err != nil {
		// Fail safe: an unreadable previous snapshot must never pass as
		// unchanged. Re-processing is cheaper than a silent skip.
		log.Warn("delta: previous snapshot unreadable, forcing changed", zap.Error(err))
		return model.DeltaRecord{
			VenueID:            venueID,
			Classification:     model.ClassificationChanged,
			CurrentFingerprint: fingerprint.Fingerprint(cur.Pages),
		}, true
	}

	// Fingerprints are always re-derived from raw page text. Stored hashes
	// may predate the current normalization rules.
	curFP := fingerprint.Fingerprint(cur.Pages)
	prevFP := fingerprint.Fingerprint(prev.Pages)

	classification := model.ClassificationChanged
	if curFP == prevFP {
		classification = model.ClassificationUnchanged
	}
	log.Info("delta: classified", zap.String("classification", string(classification)))

	rec := model.DeltaRecord{
		VenueID:        venueID,
		Classification: classification,
	}
	if classification == model.ClassificationChanged {
		rec.CurrentFingerprint = curFP
		rec.PreviousFingerprint = prevFP
	}
	return rec, true
}

// Queue filters records down to the extraction work queue: venues classified
// new or changed, preserving order.
func Queue(records []model.DeltaRecord) []model.DeltaRecord {
	var queue []model.DeltaRecord
	for _, rec := range records {
		if rec.Classification != model.ClassificationUnchanged {
			queue = append(queue, rec)
		}
	}
	return queue
}
