// Package store persists extraction results and run records for the
// refresh pipeline and the content site that consumes them.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/venuewatch/refresh-cli/internal/model"
)

// ErrNotFound is returned when a run or result does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the refresh pipeline.
// Results are keyed by venue ID; a later run's result for the same venue
// replaces the prior one entirely.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveResult(ctx context.Context, result model.ExtractionResult) error
	GetResult(ctx context.Context, venueID string) (*model.ExtractionResult, error)
	ListResults(ctx context.Context) ([]model.ExtractionResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
