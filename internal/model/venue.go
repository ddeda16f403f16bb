package model

import "time"

// Venue is a tracked subject with one or more source pages. Venues come from
// the registry and are immutable for the duration of a run.
type Venue struct {
	ID   string   `json:"id" yaml:"id"`
	Name string   `json:"name" yaml:"name"`
	URLs []string `json:"urls" yaml:"urls"`
}

// Page is one captured source page for a venue. Order within a snapshot is
// significant: the fingerprint is computed over pages in this order.
type Page struct {
	URL        string    `json:"url"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}
