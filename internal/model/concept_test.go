package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWeights() map[string]float64 {
	return map[string]float64{
		FactorPopulation:  0.30,
		FactorIncome:      0.15,
		FactorAccess:      0.25,
		FactorCompetition: 0.15,
		FactorWalkability: 0.15,
	}
}

func TestValidateWeights(t *testing.T) {
	assert.NoError(t, ValidateWeights(validWeights()))

	// 0.97 is inside the tolerance.
	w := validWeights()
	w[FactorWalkability] = 0.12
	assert.NoError(t, ValidateWeights(w))

	// 0.80 and 1.20 are rejected.
	low := validWeights()
	low[FactorPopulation] = 0.10
	assert.Error(t, ValidateWeights(low))

	high := validWeights()
	high[FactorPopulation] = 0.50
	assert.Error(t, ValidateWeights(high))
}

func TestValidateWeights_MissingAndNegative(t *testing.T) {
	missing := validWeights()
	delete(missing, FactorAccess)
	assert.Error(t, ValidateWeights(missing))

	wrongKey := validWeights()
	delete(wrongKey, FactorAccess)
	wrongKey["transit"] = 0.25
	assert.Error(t, ValidateWeights(wrongKey))

	negative := validWeights()
	negative[FactorIncome] = -0.15
	negative[FactorPopulation] = 0.60
	assert.Error(t, ValidateWeights(negative))
}

func testConcept() *Concept {
	return &Concept{
		ID:                       "c-1",
		Name:                     "Test",
		Category:                 "qsr",
		BaseRevenue:              150000,
		RevenueVariance:          0.20,
		TargetIncomeMin:          28000,
		TargetIncomeMax:          48000,
		OptimalPopulationDensity: 12000,
		TargetCompetitorsPer1k:   0.8,
		Weights:                  validWeights(),
		IsSystemDefault:          true,
		IsActive:                 true,
	}
}

func TestConceptValidate(t *testing.T) {
	require.NoError(t, testConcept().Validate())

	noCategory := testConcept()
	noCategory.Category = ""
	assert.Error(t, noCategory.Validate())

	badIncome := testConcept()
	badIncome.TargetIncomeMax = badIncome.TargetIncomeMin
	assert.Error(t, badIncome.Validate())

	badRevenue := testConcept()
	badRevenue.BaseRevenue = 0
	assert.Error(t, badRevenue.Validate())
}

func TestConceptClone(t *testing.T) {
	base := testConcept()
	clone := base.Clone("Test (trained)")

	assert.NotEqual(t, base.ID, clone.ID)
	assert.Equal(t, "Test (trained)", clone.Name)
	assert.Equal(t, base.Category, clone.Category)
	assert.False(t, clone.IsSystemDefault)
	assert.True(t, clone.IsActive)
	assert.Equal(t, base.Weights, clone.Weights)

	// Weight maps must not alias.
	clone.Weights[FactorPopulation] = 0.99
	assert.Equal(t, 0.30, base.Weights[FactorPopulation])
}
