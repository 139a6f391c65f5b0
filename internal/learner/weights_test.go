package learner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nessa01macias/spotlight/internal/model"
)

func TestPearson(t *testing.T) {
	// Perfect positive.
	assert.InDelta(t, 1.0, pearson([]float64{1, 2, 3, 4}, []float64{10, 20, 30, 40}), 0.0001)
	// Perfect negative.
	assert.InDelta(t, -1.0, pearson([]float64{1, 2, 3, 4}, []float64{40, 30, 20, 10}), 0.0001)
	// Zero variance in one series.
	assert.Equal(t, 0.0, pearson([]float64{5, 5, 5}, []float64{1, 2, 3}))
	// Too few pairs.
	assert.Equal(t, 0.0, pearson([]float64{1}, []float64{2}))
	assert.Equal(t, 0.0, pearson(nil, nil))
}

func densityOutcome(density, actual float64) model.TrainingOutcome {
	return model.TrainingOutcome{
		ActualRevenue: actual,
		Features: &model.SiteFeatures{
			PopulationDensity: model.Measured(density),
		},
	}
}

func TestCorrelationWeights_SingleFactor(t *testing.T) {
	outcomes := []model.TrainingOutcome{
		densityOutcome(4000, 80000),
		densityOutcome(8000, 100000),
		densityOutcome(12000, 120000),
		densityOutcome(16000, 140000),
	}
	actuals := []float64{80000, 100000, 120000, 140000}

	weights, ok := correlationWeights(outcomes, actuals)
	require.True(t, ok)

	// Only population correlates; it absorbs all the weight.
	assert.Equal(t, 1.0, weights[model.FactorPopulation])
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.Equal(t, 1.0, sum)
}

func TestCorrelationWeights_SplitsAcrossFactors(t *testing.T) {
	outcomes := []model.TrainingOutcome{}
	actuals := []float64{80000, 100000, 120000, 140000}
	incomes := []float64{50000, 44000, 38000, 32000} // anti-correlated
	for i, actual := range actuals {
		o := densityOutcome(float64(4000*(i+1)), actual)
		o.Features.MedianIncome = model.Measured(incomes[i])
		outcomes = append(outcomes, o)
	}

	weights, ok := correlationWeights(outcomes, actuals)
	require.True(t, ok)

	// |r| is 1 for both factors; the mass splits evenly.
	assert.InDelta(t, 0.5, weights[model.FactorPopulation], 0.0001)
	assert.InDelta(t, 0.5, weights[model.FactorIncome], 0.0001)

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.Equal(t, 1.0, sum)
}

func TestCorrelationWeights_ExcludesUnmeasuredPairs(t *testing.T) {
	outcomes := []model.TrainingOutcome{
		densityOutcome(4000, 80000),
		densityOutcome(8000, 100000),
		densityOutcome(12000, 120000),
	}
	// Income measured only once: a single pair cannot correlate and must not
	// drag the factor in as if it were zero-valued everywhere.
	outcomes[1].Features.MedianIncome = model.Measured(40000)
	actuals := []float64{80000, 100000, 120000}

	weights, ok := correlationWeights(outcomes, actuals)
	require.True(t, ok)
	assert.Equal(t, 0.0, weights[model.FactorIncome])
	assert.Equal(t, 1.0, weights[model.FactorPopulation])
}

func TestCorrelationWeights_NoSignal(t *testing.T) {
	outcomes := []model.TrainingOutcome{
		{ActualRevenue: 80000},
		{ActualRevenue: 100000},
	}
	_, ok := correlationWeights(outcomes, []float64{80000, 100000})
	assert.False(t, ok)
}

func TestFactorSignal_MetroDistanceInverted(t *testing.T) {
	near := &model.SiteFeatures{NearestMetroM: model.Measured(100)}
	far := &model.SiteFeatures{NearestMetroM: model.Measured(900)}

	nv, ok := factorSignal(model.FactorAccess, near)
	require.True(t, ok)
	fv, ok := factorSignal(model.FactorAccess, far)
	require.True(t, ok)
	assert.Greater(t, nv, fv)

	_, ok = factorSignal(model.FactorAccess, &model.SiteFeatures{})
	assert.False(t, ok)
	_, ok = factorSignal(model.FactorAccess, nil)
	assert.False(t, ok)
	_, ok = factorSignal("unknown", near)
	assert.False(t, ok)
}
