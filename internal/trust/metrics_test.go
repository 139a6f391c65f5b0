package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nessa01macias/spotlight/internal/model"
)

func measuredFeatures() model.SiteFeatures {
	return model.SiteFeatures{
		Population1km:     model.Measured(18000),
		PopulationDensity: model.Measured(12000),
		MedianIncome:      model.Measured(38000),
		NearestMetroM:     model.Measured(150),
		NearestTramM:      model.Measured(80),
		CompetitorsCount:  model.Measured(14),
		CompetitorsPer1k:  model.Measured(0.8),
		WalkabilityPOIs:   model.Measured(120),
	}
}

func TestCoverageOf_FullData(t *testing.T) {
	cov := CoverageOf(measuredFeatures())
	assert.Equal(t, 1.0, cov.Demographics)
	assert.Equal(t, 1.0, cov.Competition)
	assert.Equal(t, 1.0, cov.Transit)
	assert.Equal(t, 1.0, cov.Overall)
}

func TestCoverageOf_NoData(t *testing.T) {
	cov := CoverageOf(model.SiteFeatures{})
	assert.Equal(t, 0.0, cov.Demographics)
	assert.Equal(t, 0.0, cov.Competition)
	assert.Equal(t, 0.0, cov.Transit)
	assert.Equal(t, 0.0, cov.Overall)
}

func TestCoverageOf_WeightedOverall(t *testing.T) {
	f := model.SiteFeatures{
		Population1km:     model.Measured(18000),
		PopulationDensity: model.Measured(12000),
		MedianIncome:      model.Measured(38000),
	}
	cov := CoverageOf(f)
	assert.Equal(t, 1.0, cov.Demographics)
	assert.Equal(t, 0.0, cov.Competition)
	assert.Equal(t, 0.0, cov.Transit)
	// Demographics contributes 0.4 of the overall.
	assert.InDelta(t, 0.4, cov.Overall, 0.001)
}

func TestConfidence_PerfectAgreement(t *testing.T) {
	components := map[string]float64{
		model.FactorPopulation:  80,
		model.FactorIncome:      80,
		model.FactorAccess:      80,
		model.FactorCompetition: 80,
	}
	f := measuredFeatures()
	cov := CoverageOf(f)

	// coverage 1.0, consistency 1.0 (zero stddev), completeness 1.0.
	assert.InDelta(t, 1.0, Confidence(components, cov, f), 0.001)
}

func TestConfidence_DisagreementLowers(t *testing.T) {
	agree := map[string]float64{
		model.FactorPopulation:  75,
		model.FactorIncome:      75,
		model.FactorAccess:      75,
		model.FactorCompetition: 75,
	}
	disagree := map[string]float64{
		model.FactorPopulation:  100,
		model.FactorIncome:      0,
		model.FactorAccess:      100,
		model.FactorCompetition: 0,
	}
	f := measuredFeatures()
	cov := CoverageOf(f)

	assert.Greater(t, Confidence(agree, cov, f), Confidence(disagree, cov, f))
}

func TestConfidence_Clamped(t *testing.T) {
	components := map[string]float64{
		model.FactorPopulation:  50,
		model.FactorIncome:      50,
		model.FactorAccess:      50,
		model.FactorCompetition: 50,
	}
	f := measuredFeatures()
	cov := CoverageOf(f)

	got := Confidence(components, cov, f)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}
