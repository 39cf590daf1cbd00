package store

import (
	"context"
	"time"
)

// Store persists refinement runs for later review.
type Store interface {
	Close() error

	// SaveRun inserts or replaces a run, keyed by ID.
	SaveRun(ctx context.Context, r Run) error
	// GetRun returns internalerr.ErrNotFound for unknown ids.
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	// TopReplacements counts applied substitutions across all runs.
	TopReplacements(ctx context.Context, k int) ([]Replacement, error)
}

// Run is one refinement of a text.
type Run struct {
	ID         string
	CreatedAt  time.Time
	Original   string
	Refined    string
	ConfigJSON string
	Edits      []EditRecord
}

// EditRecord is an applied edit as stored.
type EditRecord struct {
	Sentence    int
	WordIdx     int
	Original    string
	Replacement string
	Gain        float64
	Similarity  float64
	Reason      string
}

// Replacement is a substitution and how often it was applied.
type Replacement struct {
	Original    string
	Replacement string
	Count       int64
}
