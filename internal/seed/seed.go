// Package seed ships the default concept catalog and loads it into a store.
package seed

import (
	"context"
	_ "embed"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/internal/store"
)

//go:embed concepts.yaml
var conceptsYAML []byte

type catalog struct {
	Concepts []conceptSpec `yaml:"concepts"`
}

type conceptSpec struct {
	Name                     string             `yaml:"name"`
	Category                 string             `yaml:"category"`
	Description              string             `yaml:"description"`
	BaseRevenueEUR           int                `yaml:"base_revenue_eur"`
	RevenueVariance          float64            `yaml:"revenue_variance"`
	TargetIncomeMin          int                `yaml:"target_income_min"`
	TargetIncomeMax          int                `yaml:"target_income_max"`
	OptimalPopulationDensity int                `yaml:"optimal_population_density"`
	TargetCompetitorsPer1k   float64            `yaml:"target_competitors_per_1k"`
	Weights                  map[string]float64 `yaml:"weights"`
}

// Defaults parses the embedded catalog into system default concepts.
func Defaults() ([]model.Concept, error) {
	var cat catalog
	if err := yaml.Unmarshal(conceptsYAML, &cat); err != nil {
		return nil, eris.Wrap(err, "seed: parse catalog")
	}

	now := time.Now().UTC()
	concepts := make([]model.Concept, 0, len(cat.Concepts))
	for _, spec := range cat.Concepts {
		c := model.Concept{
			ID:                       uuid.New().String(),
			Name:                     spec.Name,
			Category:                 spec.Category,
			Description:              spec.Description,
			BaseRevenue:              spec.BaseRevenueEUR,
			RevenueVariance:          spec.RevenueVariance,
			TargetIncomeMin:          spec.TargetIncomeMin,
			TargetIncomeMax:          spec.TargetIncomeMax,
			OptimalPopulationDensity: spec.OptimalPopulationDensity,
			TargetCompetitorsPer1k:   spec.TargetCompetitorsPer1k,
			Weights:                  spec.Weights,
			IsSystemDefault:          true,
			IsActive:                 true,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := c.Validate(); err != nil {
			return nil, eris.Wrapf(err, "seed: concept %q", spec.Category)
		}
		concepts = append(concepts, c)
	}
	return concepts, nil
}

// Ensure inserts any default concept whose category has no system default
// yet. Existing concepts are never modified.
func Ensure(ctx context.Context, st store.Store) (int, error) {
	defaults, err := Defaults()
	if err != nil {
		return 0, err
	}

	existing, err := st.ListConcepts(ctx)
	if err != nil {
		return 0, err
	}
	seeded := make(map[string]bool)
	for _, c := range existing {
		if c.IsSystemDefault {
			seeded[c.Category] = true
		}
	}

	inserted := 0
	for i := range defaults {
		if seeded[defaults[i].Category] {
			continue
		}
		if err := st.CreateConcept(ctx, &defaults[i]); err != nil {
			return inserted, err
		}
		inserted++
		zap.L().Info("seeded concept",
			zap.String("category", defaults[i].Category),
			zap.String("concept_id", defaults[i].ID))
	}
	return inserted, nil
}
