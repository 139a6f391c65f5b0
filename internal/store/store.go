// Package store persists concepts, predictions and training outcomes.
// SQLite backs single-node deployments; Postgres is available for shared ones.
package store

import (
	"context"

	"github.com/nessa01macias/spotlight/internal/model"
)

// OutcomeFilter narrows outcome listings.
type OutcomeFilter struct {
	ConceptID  string `json:"concept_id,omitempty"`
	UnusedOnly bool   `json:"unused_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the scoring pipeline.
type Store interface {
	// Concepts
	CreateConcept(ctx context.Context, c *model.Concept) error
	GetConcept(ctx context.Context, id string) (*model.Concept, error)
	// GetActiveConcept resolves the concept to score with for a category:
	// the most recently trained non-default concept when one exists,
	// otherwise the system default.
	GetActiveConcept(ctx context.Context, category string) (*model.Concept, error)
	ListConcepts(ctx context.Context) ([]model.Concept, error)
	// UpdateConcept persists parameter changes. System defaults are
	// immutable; updating one returns model.ErrSystemDefaultReadOnly.
	UpdateConcept(ctx context.Context, c *model.Concept) error

	// Predictions
	CreatePrediction(ctx context.Context, p *model.Prediction) error
	GetPrediction(ctx context.Context, id string) (*model.Prediction, error)

	// Outcomes
	CreateOutcome(ctx context.Context, o *model.TrainingOutcome) (*model.TrainingOutcome, error)
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.TrainingOutcome, error)
	MarkOutcomesUsed(ctx context.Context, ids []int64, weight float64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
