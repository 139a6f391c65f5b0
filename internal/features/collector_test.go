package features

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nessa01macias/spotlight/pkg/digitransit"
	"github.com/nessa01macias/spotlight/pkg/overpass"
	"github.com/nessa01macias/spotlight/pkg/statfin"
)

type fakeGeocoder struct {
	location *digitransit.Location
	address  *digitransit.Address
	err      error
}

func (f fakeGeocoder) Geocode(context.Context, string) (*digitransit.Location, error) {
	return f.location, f.err
}

func (f fakeGeocoder) Reverse(context.Context, float64, float64) (*digitransit.Address, error) {
	return f.address, f.err
}

type fakeOSM struct {
	competitors []overpass.Competitor
	transit     *overpass.TransitSummary
	pois        int
	err         error
}

func (f fakeOSM) Competitors(context.Context, float64, float64, int, string) ([]overpass.Competitor, error) {
	return f.competitors, f.err
}

func (f fakeOSM) TransitStops(context.Context, float64, float64, int) (*overpass.TransitSummary, error) {
	return f.transit, f.err
}

func (f fakeOSM) WalkabilityPOIs(context.Context, float64, float64, int) (int, error) {
	return f.pois, f.err
}

type fakeStatfin struct {
	demo *statfin.Demographics
	err  error
}

func (f fakeStatfin) DemographicsByPostalCode(context.Context, string) (*statfin.Demographics, error) {
	return f.demo, f.err
}

type fakePopulation struct {
	total   int
	density float64
	err     error
}

func (f fakePopulation) PopulationNear(context.Context, float64, float64, int) (int, float64, error) {
	return f.total, f.density, f.err
}

func ptr(d float64) *float64 { return &d }

func TestCollectPoint_AllProvidersAnswer(t *testing.T) {
	c := NewCollector(
		fakeGeocoder{address: &digitransit.Address{
			Street: "Fredrikinkatu", HouseNumber: "22", PostalCode: "00120", Locality: "Helsinki",
		}},
		fakeOSM{
			competitors: make([]overpass.Competitor, 4),
			transit:     &overpass.TransitSummary{NearestMetroM: ptr(180), NearestTramM: ptr(90)},
			pois:        62,
		},
		fakeStatfin{demo: &statfin.Demographics{
			PostalCode: "00120", AreaName: "Punavuori", MedianIncome: 41000, PopulationDensity: 11200,
		}},
		fakePopulation{total: 15000, density: 12500},
	)

	f := c.CollectPoint(context.Background(), 60.1648, 24.9402, "qsr")

	assert.Equal(t, "Fredrikinkatu 22, 00120 Helsinki", f.Address)
	assert.Equal(t, "Helsinki", f.AreaName)
	assert.Equal(t, "00120", f.PostalCode)

	assert.True(t, f.Population1km.Measured)
	assert.Equal(t, 15000.0, f.Population1km.Value)
	// The direct population grid wins over the postal-area density.
	assert.Equal(t, 12500.0, f.PopulationDensity.Value)
	assert.True(t, f.MedianIncome.Measured)
	assert.Equal(t, 41000.0, f.MedianIncome.Value)

	assert.Equal(t, 180.0, f.NearestMetroM.Value)
	assert.Equal(t, 90.0, f.NearestTramM.Value)
	assert.Equal(t, 4.0, f.CompetitorsCount.Value)
	assert.Equal(t, 62.0, f.WalkabilityPOIs.Value)

	// 4 competitors over 15 thousand residents.
	require.True(t, f.CompetitorsPer1k.Measured)
	assert.InDelta(t, 4.0/15.0, f.CompetitorsPer1k.Value, 0.0001)
}

func TestCollectPoint_AllProvidersFail(t *testing.T) {
	boom := eris.New("provider down")
	c := NewCollector(
		fakeGeocoder{err: boom},
		fakeOSM{err: boom},
		fakeStatfin{err: boom},
		fakePopulation{err: boom},
	)

	f := c.CollectPoint(context.Background(), 60.1648, 24.9402, "qsr")

	// Collection never fails outright; every field is defaulted.
	assert.False(t, f.Population1km.Measured)
	assert.False(t, f.PopulationDensity.Measured)
	assert.False(t, f.MedianIncome.Measured)
	assert.False(t, f.NearestMetroM.Measured)
	assert.False(t, f.CompetitorsCount.Measured)
	assert.False(t, f.CompetitorsPer1k.Measured)
	assert.False(t, f.WalkabilityPOIs.Measured)
	assert.Equal(t, "60.1648, 24.9402", f.Address)
	assert.Equal(t, 60.1648, f.Latitude)
	assert.Equal(t, 24.9402, f.Longitude)
}

func TestCollectPoint_PostalDensityFallsBack(t *testing.T) {
	c := NewCollector(
		fakeGeocoder{address: &digitransit.Address{Street: "Bulevardi", PostalCode: "00120", Locality: "Helsinki"}},
		fakeOSM{err: eris.New("down")},
		fakeStatfin{demo: &statfin.Demographics{PostalCode: "00120", MedianIncome: 39000, PopulationDensity: 10900}},
		fakePopulation{err: eris.New("no grid")},
	)

	f := c.CollectPoint(context.Background(), 60.1630, 24.9400, "coffee")

	// Without the population grid, the postal-area density still counts.
	assert.False(t, f.Population1km.Measured)
	assert.True(t, f.PopulationDensity.Measured)
	assert.Equal(t, 10900.0, f.PopulationDensity.Value)
	// Per-1k needs the resident count, which is missing.
	assert.False(t, f.CompetitorsPer1k.Measured)
}

func TestCollectPoint_NoTransitWithinRadius(t *testing.T) {
	c := NewCollector(
		fakeGeocoder{},
		fakeOSM{transit: &overpass.TransitSummary{}},
		fakeStatfin{},
		fakePopulation{total: 9000},
	)

	f := c.CollectPoint(context.Background(), 60.22, 25.04, "qsr")
	assert.False(t, f.NearestMetroM.Measured)
	assert.False(t, f.NearestTramM.Measured)
	// Zero competitors is a measurement, not a gap.
	assert.True(t, f.CompetitorsCount.Measured)
	assert.Equal(t, 0.0, f.CompetitorsCount.Value)
}

func TestCollectAddress(t *testing.T) {
	c := NewCollector(
		fakeGeocoder{location: &digitransit.Location{Latitude: 60.1648, Longitude: 24.9402, PostalCode: "00120"}},
		fakeOSM{},
		fakeStatfin{},
		fakePopulation{total: 15000},
	)

	f, err := c.CollectAddress(context.Background(), "Fredrikinkatu 22, Helsinki", "qsr")
	require.NoError(t, err)
	assert.Equal(t, "Fredrikinkatu 22, Helsinki", f.Address)
	assert.Equal(t, "00120", f.PostalCode)
	assert.Equal(t, 60.1648, f.Latitude)
}

func TestCollectAddress_NotFound(t *testing.T) {
	c := NewCollector(fakeGeocoder{}, fakeOSM{}, fakeStatfin{}, fakePopulation{})

	_, err := c.CollectAddress(context.Background(), "Nowhere 1, Atlantis", "qsr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCollectAddress_GeocoderError(t *testing.T) {
	c := NewCollector(fakeGeocoder{err: eris.New("upstream 500")}, fakeOSM{}, fakeStatfin{}, fakePopulation{})

	_, err := c.CollectAddress(context.Background(), "Fredrikinkatu 22", "qsr")
	require.Error(t, err)
}
