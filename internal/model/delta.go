package model

// Classification is the delta detector's verdict for one venue.
type Classification string

const (
	ClassificationNew       Classification = "new"
	ClassificationChanged   Classification = "changed"
	ClassificationUnchanged Classification = "unchanged"
)

// DeltaRecord is computed per run and never persisted. It exists only to
// drive the extraction work queue.
type DeltaRecord struct {
	VenueID        string         `json:"venue_id"`
	Classification Classification `json:"classification"`

	// Fingerprints compared, populated for "changed" records.
	CurrentFingerprint  string `json:"current_fingerprint,omitempty"`
	PreviousFingerprint string `json:"previous_fingerprint,omitempty"`
}
