package model

import "time"

// Tier identifies which extraction strategy produced a result. Downstream
// consumers treat lower tiers as higher confidence.
type Tier int

const (
	TierDeterministic Tier = 1
	TierContentLLM    Tier = 2
	TierKnowledgeLLM  Tier = 3
)

// VenueState tracks a venue through the tier coordinator. Resolved and
// unresolved are terminal for the run.
type VenueState string

const (
	StatePending        VenueState = "pending"
	StateTier1Attempted VenueState = "tier1_attempted"
	StateTier2Attempted VenueState = "tier2_attempted"
	StateTier3Attempted VenueState = "tier3_attempted"
	StateResolved       VenueState = "resolved"
	StateUnresolved     VenueState = "unresolved"
)

// Provenance records how a result was produced.
type Provenance struct {
	Tier          Tier   `json:"tier"`
	Source        string `json:"source"`                   // "pattern", "llm-content", "llm-knowledge"
	PromptVersion string `json:"prompt_version,omitempty"` // LLM tiers only
	Model         string `json:"model,omitempty"`
}

// ExtractionResult is the durable outcome for one venue in one run. A later
// run's result for the same venue supersedes it entirely; results are never
// merged.
type ExtractionResult struct {
	VenueID     string     `json:"venue_id"`
	Tier        Tier       `json:"tier"`
	Facts       VenueFacts `json:"facts"`
	Provenance  Provenance `json:"provenance"`
	RunID       string     `json:"run_id"`
	ExtractedAt time.Time  `json:"extracted_at"`
}
