package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticPopulation_NearestCluster(t *testing.T) {
	p := StaticPopulation{}

	// Right on the Kamppi centroid.
	total, density, err := p.PopulationNear(context.Background(), 60.170, 24.938, 1000)
	require.NoError(t, err)
	assert.Equal(t, 18000, total)
	assert.Equal(t, 12500.0, density)

	// Near Kallio.
	total, _, err = p.PopulationNear(context.Background(), 60.181, 24.951, 1000)
	require.NoError(t, err)
	assert.Equal(t, 13500, total)
}

func TestStaticPopulation_SuburbanDefault(t *testing.T) {
	p := StaticPopulation{}

	// Vantaa airport area is outside every known cluster.
	total, density, err := p.PopulationNear(context.Background(), 60.317, 24.963, 1000)
	require.NoError(t, err)
	assert.Equal(t, suburbanDefaultPop, total)
	assert.Equal(t, float64(suburbanDefaultDensity), density)
}
