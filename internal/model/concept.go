package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Factor names used in concept weight maps and score component maps.
const (
	FactorPopulation  = "population"
	FactorIncome      = "income"
	FactorAccess      = "access"
	FactorCompetition = "competition"
	FactorWalkability = "walkability"
)

// FactorNames lists the five scoring factors in canonical order.
var FactorNames = []string{
	FactorPopulation,
	FactorIncome,
	FactorAccess,
	FactorCompetition,
	FactorWalkability,
}

// WeightSumTolerance is the allowed deviation of a weight set's sum from 1.0.
const WeightSumTolerance = 0.05

// Sentinel errors for the not-found and validation failure cases.
// Callers test these with eris.Is.
var (
	ErrConceptNotFound      = eris.New("concept not found")
	ErrPredictionNotFound   = eris.New("prediction not found")
	ErrDuplicateOutcome     = eris.New("outcome already recorded for prediction")
	ErrSystemDefaultReadOnly = eris.New("system default concept is read-only")
)

// Concept is a named, learnable parameter set for a business category.
// Parameters start from seeded defaults and are re-estimated by the
// outcome learner as openings report actual revenue.
type Concept struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`

	// Revenue model (EUR/month). RevenueVariance shrinks with learning.
	BaseRevenue     int     `json:"base_revenue_eur"`
	RevenueVariance float64 `json:"revenue_variance"`

	// Target demographics.
	TargetIncomeMin          int     `json:"target_income_min"`
	TargetIncomeMax          int     `json:"target_income_max"`
	OptimalPopulationDensity int     `json:"optimal_population_density"`
	TargetCompetitorsPer1k   float64 `json:"target_competitors_per_1k"`

	// Scoring weights over the five factors. Must sum to 1.0 ± 0.05.
	Weights map[string]float64 `json:"weights"`

	// Learning metadata.
	OutcomesCount      int        `json:"outcomes_count"`
	AvgPredictionError *float64   `json:"avg_prediction_error,omitempty"` // MAPE, nil until trained
	LastTrainedAt      *time.Time `json:"last_trained_at,omitempty"`

	IsSystemDefault bool `json:"is_system_default"`
	IsActive        bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateWeights checks that weights contain exactly the five known factors
// and sum to 1.0 within WeightSumTolerance.
func ValidateWeights(weights map[string]float64) error {
	if len(weights) != len(FactorNames) {
		return eris.Errorf("weights: expected %d factors, got %d", len(FactorNames), len(weights))
	}
	sum := 0.0
	for _, name := range FactorNames {
		w, ok := weights[name]
		if !ok {
			return eris.Errorf("weights: missing factor %q", name)
		}
		if w < 0 {
			return eris.Errorf("weights: factor %q is negative", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return eris.Errorf("weights: sum %.3f outside 1.0±%.2f", sum, WeightSumTolerance)
	}
	return nil
}

// Validate checks the concept's invariants before persistence.
func (c *Concept) Validate() error {
	if c.Category == "" {
		return eris.New("concept: category is required")
	}
	if c.BaseRevenue <= 0 {
		return eris.New("concept: base revenue must be positive")
	}
	if c.TargetIncomeMin <= 0 || c.TargetIncomeMax <= c.TargetIncomeMin {
		return eris.New("concept: target income range is invalid")
	}
	if c.OptimalPopulationDensity <= 0 {
		return eris.New("concept: optimal population density must be positive")
	}
	if c.TargetCompetitorsPer1k <= 0 {
		return eris.New("concept: target competitors per 1k must be positive")
	}
	return ValidateWeights(c.Weights)
}

// Clone produces a non-default, active copy of the concept with a fresh ID.
// Used to softly supersede a system default before the learner mutates it.
func (c *Concept) Clone(name string) *Concept {
	weights := make(map[string]float64, len(c.Weights))
	for k, v := range c.Weights {
		weights[k] = v
	}
	now := time.Now().UTC()
	return &Concept{
		ID:                       uuid.New().String(),
		Name:                     name,
		Category:                 c.Category,
		Description:              c.Description,
		BaseRevenue:              c.BaseRevenue,
		RevenueVariance:          c.RevenueVariance,
		TargetIncomeMin:          c.TargetIncomeMin,
		TargetIncomeMax:          c.TargetIncomeMax,
		OptimalPopulationDensity: c.OptimalPopulationDensity,
		TargetCompetitorsPer1k:   c.TargetCompetitorsPer1k,
		Weights:                  weights,
		IsSystemDefault:          false,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}
