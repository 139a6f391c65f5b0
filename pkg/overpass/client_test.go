package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(100, 100))
}

func TestCompetitors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("data")
		// QSR competition covers fast food and restaurants, not cafes.
		assert.Contains(t, query, `"amenity"="fast_food"`)
		assert.Contains(t, query, `"amenity"="restaurant"`)
		assert.NotContains(t, query, `"amenity"="cafe"`)

		w.Write([]byte(`{"elements":[
			{"type":"node","lat":60.1710,"lon":24.9350,"tags":{"name":"Burger Bar","amenity":"fast_food"}},
			{"type":"node","lat":60.1650,"lon":24.9300,"tags":{"amenity":"restaurant","cuisine":"pizza"}},
			{"type":"way","tags":{"amenity":"restaurant"}}
		]}`))
	})

	competitors, err := c.Competitors(context.Background(), 60.1699, 24.9342, 1000, "qsr")
	require.NoError(t, err)
	// Only nodes count; nearest first.
	require.Len(t, competitors, 2)
	assert.Equal(t, "Burger Bar", competitors[0].Name)
	assert.Equal(t, "Unknown", competitors[1].Name)
	assert.Equal(t, "pizza", competitors[1].Cuisine)
	assert.Less(t, competitors[0].DistanceM, competitors[1].DistanceM)
	assert.Positive(t, competitors[0].DistanceM)
}

func TestCompetitors_UnknownCategoryUsesBroadFilter(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.Form.Get("data"), `"amenity"="cafe"`)
		w.Write([]byte(`{"elements":[]}`))
	})

	competitors, err := c.Competitors(context.Background(), 60.17, 24.93, 1000, "bakery")
	require.NoError(t, err)
	assert.Empty(t, competitors)
}

func TestTransitStops(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"elements":[
			{"type":"node","lat":60.1690,"lon":24.9330,"tags":{"name":"Kamppi","railway":"subway_entrance"}},
			{"type":"node","lat":60.1750,"lon":24.9400,"tags":{"name":"Kamppi M2","railway":"subway_entrance"}},
			{"type":"node","lat":60.1700,"lon":24.9345,"tags":{"name":"Kampintori","railway":"tram_stop"}}
		]}`))
	})

	summary, err := c.TransitStops(context.Background(), 60.1699, 24.9342, 800)
	require.NoError(t, err)
	require.Len(t, summary.MetroStations, 2)
	require.Len(t, summary.TramStops, 1)
	assert.Equal(t, "Kamppi", summary.MetroStations[0].Name)
	require.NotNil(t, summary.NearestMetroM)
	require.NotNil(t, summary.NearestTramM)
	assert.Equal(t, summary.MetroStations[0].DistanceM, *summary.NearestMetroM)
	assert.Less(t, *summary.NearestTramM, *summary.NearestMetroM)
}

func TestTransitStops_NoneInRange(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"elements":[]}`))
	})

	summary, err := c.TransitStops(context.Background(), 60.22, 25.04, 800)
	require.NoError(t, err)
	assert.Nil(t, summary.NearestMetroM)
	assert.Nil(t, summary.NearestTramM)
	assert.Empty(t, summary.MetroStations)
}

func TestWalkabilityPOIs(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"elements":[
			{"type":"node","lat":60.17,"lon":24.93,"tags":{"amenity":"pharmacy"}},
			{"type":"node","lat":60.17,"lon":24.93,"tags":{"amenity":"bank"}},
			{"type":"node","lat":60.17,"lon":24.93,"tags":{}}
		]}`))
	})

	n, err := c.WalkabilityPOIs(context.Background(), 60.1699, 24.9342, 500)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClient_UpstreamError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too busy", http.StatusGatewayTimeout)
	})

	_, err := c.Competitors(context.Background(), 60.17, 24.93, 1000, "qsr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "504")
}

func TestFiltersFor(t *testing.T) {
	assert.Equal(t, []string{"cafe"}, filtersFor("coffee"))
	assert.Equal(t, []string{"cafe"}, filtersFor("COFFEE"))
	assert.Equal(t, []string{"restaurant", "fast_food", "cafe"}, filtersFor(""))
}
