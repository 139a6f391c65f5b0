// Package trust computes the coverage and confidence metrics that make data
// degradation visible to callers. Pure functions, no state.
package trust

import (
	"math"

	"github.com/nessa01macias/spotlight/internal/model"
)

// Coverage reports the per-category fraction of populated required fields,
// plus a weighted overall value (demographics 0.4, competition 0.3,
// transit 0.3).
type Coverage struct {
	Demographics float64 `json:"demographics"`
	Competition  float64 `json:"competition"`
	Transit      float64 `json:"transit"`
	Overall      float64 `json:"overall"`
}

// CoverageOf derives coverage from the measured/defaulted flags of a
// feature snapshot.
func CoverageOf(f model.SiteFeatures) Coverage {
	demographics := presentFraction(f.Population1km, f.PopulationDensity, f.MedianIncome)
	competition := presentFraction(f.CompetitorsCount, f.CompetitorsPer1k)
	transit := presentFraction(f.NearestMetroM, f.NearestTramM, f.WalkabilityPOIs)

	overall := demographics*0.4 + competition*0.3 + transit*0.3

	return Coverage{
		Demographics: round2(demographics),
		Competition:  round2(competition),
		Transit:      round2(transit),
		Overall:      round2(overall),
	}
}

// Confidence blends data coverage (40%), score consistency (30%), and
// feature completeness (30%) into a 0-1 value. Consistency rises as the
// component scores agree: 1 − stddev/50, floored at 0.
func Confidence(components map[string]float64, cov Coverage, f model.SiteFeatures) float64 {
	scores := []float64{
		componentOr(components, model.FactorPopulation, 50),
		componentOr(components, model.FactorIncome, 50),
		componentOr(components, model.FactorAccess, 50),
		componentOr(components, model.FactorCompetition, 50),
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))
	stddev := math.Sqrt(variance)

	consistency := math.Max(0, 1-stddev/50)

	completeness := presentFraction(
		f.Population1km,
		f.MedianIncome,
		f.CompetitorsCount,
		f.NearestMetroM,
		f.WalkabilityPOIs,
	)

	confidence := cov.Overall*0.4 + consistency*0.3 + completeness*0.3
	return round2(math.Min(confidence, 1.0))
}

func presentFraction(ms ...model.Measurement) float64 {
	present := 0
	for _, m := range ms {
		if m.Measured {
			present++
		}
	}
	return float64(present) / float64(len(ms))
}

func componentOr(components map[string]float64, name string, fallback float64) float64 {
	if v, ok := components[name]; ok {
		return v
	}
	return fallback
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
