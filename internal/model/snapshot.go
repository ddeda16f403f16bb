package model

import "time"

// Generation identifies which bucket of the two-generation scheme a
// snapshot lives in.
type Generation string

const (
	GenerationCurrent  Generation = "current"
	GenerationPrevious Generation = "previous"
)

// Snapshot is the captured content for one venue at one generation.
// Snapshots are immutable once written; an update replaces the whole
// snapshot rather than mutating it.
type Snapshot struct {
	VenueID    string    `json:"venue_id"`
	Pages      []Page    `json:"pages"`
	CapturedAt time.Time `json:"captured_at"`

	// Fingerprint is the content hash recorded at write time. Readers must
	// not trust it: older pipeline versions used weaker normalization, so
	// comparisons always re-derive the fingerprint from Pages.
	Fingerprint string `json:"fingerprint,omitempty"`
}
