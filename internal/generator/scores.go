package generator

import (
	"fmt"
	"math"

	"github.com/nessa01macias/spotlight/internal/model"
)

// Recommendation weighting over the candidate sub-scores. Crime is a
// penalty factor applied only on request; without it the active weights
// sum to 0.95 and the total is computed over that mass.
var recommendationWeights = map[string]float64{
	"population":          0.28,
	"income_fit":          0.22,
	"transit_access":      0.20,
	"competition_inverse": 0.15,
	"traffic_access":      0.10,
	"crime":               0.05,
}

// subScore is one factor's contribution before weighting. Coverage is 1 for
// measured data and 0 for a neutral fallback.
type subScore struct {
	Score    float64
	Coverage float64
	Source   string
	RawValue *float64
	RawUnit  string
}

// neutralScore substitutes for a failed provider so one bad lookup never
// drops a candidate.
func neutralScore(source string) subScore {
	return subScore{Score: 50, Coverage: 0, Source: source}
}

func populationSubScore(population int) subScore {
	raw := float64(population)
	return subScore{
		Score:    math.Min(raw/25000*100, 100),
		Coverage: 1,
		Source:   "statistics_finland_grid",
		RawValue: &raw,
		RawUnit:  "residents_1km",
	}
}

func competitionSubScore(competitors, population int) subScore {
	per1k := 0.0
	if population > 0 {
		per1k = float64(competitors) / (float64(population) / 1000)
	}
	return subScore{
		Score:    math.Max(100-per1k*33.3, 0),
		Coverage: 1,
		Source:   "openstreetmap_overpass",
		RawValue: &per1k,
		RawUnit:  "competitors_per_1k",
	}
}

func transitSubScore(metroM, tramM *float64) subScore {
	score := 0.0
	var raw *float64
	if metroM != nil {
		score += math.Max(50-*metroM/10, 0)
		raw = metroM
	}
	if tramM != nil {
		score += math.Max(50-*tramM/6, 0)
		if raw == nil {
			raw = tramM
		}
	}
	return subScore{
		Score:    math.Min(score, 100),
		Coverage: 1,
		Source:   "openstreetmap_overpass",
		RawValue: raw,
		RawUnit:  "meters",
	}
}

// incomeSubScore and trafficSubScore are static heuristics until their
// providers land. Coverage 0 keeps them out of the confidence basis.

func incomeSubScore() subScore {
	return subScore{Score: 70, Coverage: 0, Source: "static_estimate"}
}

func trafficSubScore() subScore {
	return subScore{Score: 60, Coverage: 0, Source: "static_estimate"}
}

// combine weights the sub-scores into a 0-100 total. The weight mass is
// 0.95 without the crime factor and 1.00 with it.
func combine(scores map[string]subScore) (float64, model.Provenance) {
	total := 0.0
	factors := make(map[string]model.FactorProvenance, len(scores))
	for name, s := range scores {
		w := recommendationWeights[name]
		weighted := s.Score * w
		total += weighted
		factors[name] = model.FactorProvenance{
			Score:         round1(s.Score),
			Weight:        w,
			WeightedScore: round1(weighted),
			Source:        s.Source,
			Coverage:      s.Coverage,
			RawValue:      s.RawValue,
			RawUnit:       s.RawUnit,
		}
	}
	total = round1(math.Min(math.Max(total, 0), 100))
	return total, model.Provenance{
		Factors:         factors,
		TotalScore:      total,
		ConfidenceBasis: "data_coverage",
	}
}

// candidateConfidence grows with the coverage of the three measured factors,
// capped below certainty because two factors are static heuristics.
func candidateConfidence(popCov, compCov, transitCov float64) float64 {
	return math.Min(0.5+popCov*0.2+compCov*0.2+transitCov*0.1, 0.95)
}

// decide assigns the decision label and its reasoning.
func decide(score, confidence float64) (string, string) {
	switch {
	case score >= 85 && confidence >= 0.80:
		return model.DecisionMakeOffer,
			fmt.Sprintf("Score %.0f with %.0f%% confidence clears the offer threshold", score, confidence*100)
	case score >= 70 && confidence >= 0.65:
		return model.DecisionNegotiate,
			fmt.Sprintf("Score %.0f is promising but %.0f%% confidence warrants negotiation", score, confidence*100)
	default:
		return model.DecisionPass,
			fmt.Sprintf("Score %.0f or %.0f%% confidence below actionable thresholds", score, confidence*100)
	}
}

// whyHighlights summarizes the strongest factors for the candidate.
func whyHighlights(scores map[string]subScore) []string {
	var why []string
	if s, ok := scores["population"]; ok && s.Score >= 70 && s.Coverage > 0 {
		why = append(why, "Dense residential catchment within 1 km")
	}
	if s, ok := scores["competition_inverse"]; ok && s.Score >= 70 && s.Coverage > 0 {
		why = append(why, "Few direct competitors nearby")
	}
	if s, ok := scores["transit_access"]; ok && s.Score >= 70 && s.Coverage > 0 {
		why = append(why, "Strong rapid-transit access")
	}
	if len(why) == 0 {
		why = append(why, "Balanced profile across measured factors")
	}
	return why
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
