package learner

import (
	"math"

	"github.com/nessa01macias/spotlight/internal/model"
)

// factorSignal extracts the per-outcome signal correlated against actual
// revenue for one scoring factor. Metro distance is inverted so that closer
// stations correlate positively with revenue. ok is false when the feature
// snapshot did not measure the underlying value; such pairs are excluded
// from the correlation rather than treated as zero.
func factorSignal(factor string, f *model.SiteFeatures) (float64, bool) {
	if f == nil {
		return 0, false
	}
	switch factor {
	case model.FactorPopulation:
		return f.PopulationDensity.Value, f.PopulationDensity.Measured
	case model.FactorIncome:
		return f.MedianIncome.Value, f.MedianIncome.Measured
	case model.FactorAccess:
		return 1 / (f.NearestMetroM.Value + 1), f.NearestMetroM.Measured
	case model.FactorCompetition:
		return f.CompetitorsPer1k.Value, f.CompetitorsPer1k.Measured
	case model.FactorWalkability:
		return f.WalkabilityPOIs.Value, f.WalkabilityPOIs.Measured
	}
	return 0, false
}

// correlationWeights derives factor weights from the absolute Pearson
// correlation of each factor's signal with actual revenue, normalized to sum
// to exactly 1.0. Returns ok=false when no factor correlates at all, which
// leaves the concept's existing weights in place.
func correlationWeights(outcomes []model.TrainingOutcome, actuals []float64) (map[string]float64, bool) {
	raw := make(map[string]float64, len(model.FactorNames))
	total := 0.0
	for _, name := range model.FactorNames {
		var xs, ys []float64
		for i, o := range outcomes {
			v, ok := factorSignal(name, o.Features)
			if !ok {
				continue
			}
			xs = append(xs, v)
			ys = append(ys, actuals[i])
		}
		r := math.Abs(pearson(xs, ys))
		raw[name] = r
		total += r
	}
	if total == 0 {
		return nil, false
	}

	weights := make(map[string]float64, len(raw))
	sum := 0.0
	largest := model.FactorNames[0]
	for _, name := range model.FactorNames {
		w := math.Round(raw[name]/total*1000) / 1000
		weights[name] = w
		sum += w
		if w > weights[largest] {
			largest = name
		}
	}
	// Rounding residual lands on the largest weight so the sum is exact.
	weights[largest] += 1.0 - sum
	return weights, true
}

// pearson computes the Pearson correlation coefficient of two equal-length
// series. Fewer than two pairs or zero variance in either series yields 0.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}
	meanX := mean(xs)
	meanY := mean(ys)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
