// Package scoring implements the deterministic multi-factor opportunity
// scoring model. All functions are pure: no I/O, no shared state, safe to
// call concurrently.
package scoring

import (
	"math"

	"github.com/nessa01macias/spotlight/internal/model"
)

// Revenue band half-width bounds. The band widens from 15% to 30% as
// confidence drops.
const (
	bandBase   = 0.15
	bandSpread = 0.15
)

// Score computes the overall 0-100 opportunity score, the three-point revenue
// band, and a confidence value for one site under one concept's parameters.
// It fails only when the concept is absent; missing feature fields degrade to
// neutral defaults and surface through the confidence value instead.
func Score(f model.SiteFeatures, c *model.Concept) (*model.ScoreResult, error) {
	if c == nil {
		return nil, model.ErrConceptNotFound
	}

	components := map[string]float64{
		model.FactorPopulation:  PopulationScore(f.PopulationDensity.Value, float64(c.OptimalPopulationDensity)),
		model.FactorIncome:      IncomeScore(f.MedianIncome.Value, float64(c.TargetIncomeMin), float64(c.TargetIncomeMax)),
		model.FactorAccess:      AccessScore(measurementPtr(f.NearestMetroM), measurementPtr(f.NearestTramM)),
		model.FactorCompetition: CompetitionScore(f.CompetitorsPer1k.Value, c.TargetCompetitorsPer1k),
		model.FactorWalkability: WalkabilityScore(int(f.WalkabilityPOIs.Value)),
	}

	overall := 0.0
	for name, weight := range c.Weights {
		overall += weight * components[name]
	}

	mid := revenueMid(f, c)
	confidence := Confidence(f)

	band := bandBase + bandSpread*(1-confidence)
	low := mid * (1 - band)
	high := mid * (1 + band)

	return &model.ScoreResult{
		Score:       round1(overall),
		RevenueLow:  int(math.Round(low)),
		RevenueMid:  int(math.Round(mid)),
		RevenueHigh: int(math.Round(high)),
		Confidence:  round2(confidence),
		Components: map[string]float64{
			model.FactorPopulation:  round1(components[model.FactorPopulation]),
			model.FactorIncome:      round1(components[model.FactorIncome]),
			model.FactorAccess:      round1(components[model.FactorAccess]),
			model.FactorCompetition: round1(components[model.FactorCompetition]),
			model.FactorWalkability: round1(components[model.FactorWalkability]),
		},
		ConceptID: c.ID,
	}, nil
}

// PopulationScore scales linearly with density up to the optimal density,
// at which point it caps at 100.
func PopulationScore(density, optimal float64) float64 {
	switch {
	case density <= 0:
		return 0
	case density >= optimal:
		return 100
	default:
		return (density / optimal) * 100
	}
}

// IncomeScore measures how well median income matches the concept's target
// range. Below target is penalized hard; above target only mildly, since
// excess income is not harmful; within the range the score peaks at the
// midpoint and never drops below 85.
func IncomeScore(income, targetMin, targetMax float64) float64 {
	switch {
	case income < targetMin:
		gap := targetMin - income
		penalty := math.Min((gap/targetMin)*100, 50)
		return math.Max(50-penalty, 0)
	case income > targetMax:
		gap := income - targetMax
		penalty := math.Min((gap/targetMax)*50, 25)
		return math.Max(75-penalty, 50)
	default:
		middle := (targetMin + targetMax) / 2
		distance := math.Abs(income - middle)
		maxDistance := (targetMax - targetMin) / 2
		return math.Max(100-(distance/maxDistance)*15, 85)
	}
}

// AccessScore starts at a base of 50 and adds tiered bonuses for rapid
// transit (metro) and secondary transit (tram) proximity, capped at 100.
// A nil distance means no stop was found in range.
func AccessScore(metroM, tramM *float64) float64 {
	score := 50.0

	if metroM != nil {
		switch {
		case *metroM <= 200:
			score += 40
		case *metroM <= 500:
			score += 30
		case *metroM <= 1000:
			score += 15
		}
	}

	if tramM != nil {
		switch {
		case *tramM <= 100:
			score += 10
		case *tramM <= 300:
			score += 5
		}
	}

	return math.Min(score, 100)
}

// CompetitionScore scores the saturation ratio (observed competitors per 1k
// residents over the concept target). Near-target is the sweet spot; zero
// competitors is treated as suspicious (possibly no demand).
func CompetitionScore(per1k, target float64) float64 {
	if per1k == 0 {
		return 40
	}

	ratio := per1k / target
	switch {
	case ratio >= 0.8 && ratio <= 1.2:
		return 100
	case ratio >= 0.5 && ratio < 0.8:
		return 85
	case ratio > 1.2 && ratio <= 1.5:
		return 75
	case ratio > 1.5:
		penalty := math.Min((ratio-1.5)*30, 50)
		return math.Max(50-penalty, 20)
	default:
		return 60
	}
}

// WalkabilityScore maps the point-of-interest count through fixed thresholds.
func WalkabilityScore(poiCount int) float64 {
	switch {
	case poiCount >= 100:
		return 100
	case poiCount >= 50:
		return 85
	case poiCount >= 25:
		return 70
	case poiCount >= 10:
		return 55
	default:
		return math.Max(float64(poiCount)*3, 20)
	}
}

// revenueMid estimates monthly revenue from base revenue and the density,
// income, and saturation multipliers, floored at 50% of base.
func revenueMid(f model.SiteFeatures, c *model.Concept) float64 {
	popMultiplier := math.Min(f.PopulationDensity.Value/float64(c.OptimalPopulationDensity), 1.5)

	targetMid := float64(c.TargetIncomeMin+c.TargetIncomeMax) / 2
	incomeMultiplier := 1.0
	if f.MedianIncome.Value > 0 {
		incomeMultiplier = 0.7 + (f.MedianIncome.Value/targetMid)*0.3
		incomeMultiplier = math.Max(math.Min(incomeMultiplier, 1.3), 0.7)
	}

	saturationPenalty := 0.0
	if ratio := f.CompetitorsPer1k.Value / c.TargetCompetitorsPer1k; ratio > 1 {
		saturationPenalty = math.Min((ratio-1)*0.3, 0.4)
	}

	revenue := float64(c.BaseRevenue) * popMultiplier * incomeMultiplier * (1 - saturationPenalty)
	return math.Max(revenue, float64(c.BaseRevenue)*0.5)
}

// Confidence is 0.6 plus up to 0.4 for data completeness across the four
// required fields: density, income, competitor count, and metro distance.
func Confidence(f model.SiteFeatures) float64 {
	required := []model.Measurement{
		f.PopulationDensity,
		f.MedianIncome,
		f.CompetitorsCount,
		f.NearestMetroM,
	}
	present := 0
	for _, m := range required {
		if m.Measured {
			present++
		}
	}
	return 0.6 + 0.4*(float64(present)/float64(len(required)))
}

// Recommendation maps an overall score to a coarse recommendation label.
func Recommendation(score float64) string {
	switch {
	case score >= 85:
		return "strong"
	case score >= 70:
		return "moderate"
	case score >= 55:
		return "weak"
	default:
		return "pass"
	}
}

func measurementPtr(m model.Measurement) *float64 {
	if !m.Measured {
		return nil
	}
	v := m.Value
	return &v
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
