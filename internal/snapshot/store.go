// Package snapshot persists per-venue page content under a rotating
// two-generation scheme: "current" holds today's captures, "previous" holds
// the prior generation used for change detection.
package snapshot

import (
	"errors"
	"time"

	"github.com/venuewatch/refresh-cli/internal/model"
)

// ErrNotFound is returned when no snapshot exists for a venue in the
// requested generation. Absence of a previous snapshot is an expected state
// for new venues, not a failure.
var ErrNotFound = errors.New("snapshot not found")

// Store is the two-generation snapshot store. Implementations must make
// writes atomic with respect to concurrent readers in other processes.
type Store interface {
	// Rotate moves the current generation into previous if the stored marker
	// date differs from today. Calling it twice on the same day is a no-op
	// the second time. When previous is empty but current is not, the current
	// generation is copied into previous instead ("establish baseline") so
	// the first run after a cold start has a comparison target.
	Rotate(today time.Time) error

	// Write replaces the current-generation snapshot for a venue.
	// Last writer wins; snapshots are never merged.
	Write(venueID string, pages []model.Page) error

	// Read returns the snapshot for a venue in the given generation, or
	// ErrNotFound. A corrupt current-generation snapshot reads as
	// ErrNotFound (forcing a re-fetch); a corrupt previous-generation
	// snapshot surfaces the underlying error so callers can fail safe.
	Read(venueID string, gen model.Generation) (*model.Snapshot, error)

	// List returns the venue IDs present in a generation, sorted.
	List(gen model.Generation) ([]string, error)
}

// dateOf truncates a time to its calendar date in UTC. Rotation is keyed on
// calendar days, not 24h windows.
func dateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
