package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nessa01macias/spotlight/internal/features"
	"github.com/nessa01macias/spotlight/internal/generator"
	"github.com/nessa01macias/spotlight/internal/job"
	"github.com/nessa01macias/spotlight/internal/learner"
	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/internal/seed"
	"github.com/nessa01macias/spotlight/internal/store"
	"github.com/nessa01macias/spotlight/pkg/digitransit"
	"github.com/nessa01macias/spotlight/pkg/overpass"
	"github.com/nessa01macias/spotlight/pkg/statfin"
)

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(_ context.Context, address string) (*digitransit.Location, error) {
	if address == "Nowhere 1, Atlantis" {
		return nil, nil
	}
	return &digitransit.Location{Latitude: 60.1648, Longitude: 24.9402, PostalCode: "00120"}, nil
}

func (fakeGeocoder) Reverse(context.Context, float64, float64) (*digitransit.Address, error) {
	return &digitransit.Address{Street: "Fredrikinkatu", HouseNumber: "22", PostalCode: "00120", Locality: "Helsinki"}, nil
}

type fakeOSM struct{}

func (fakeOSM) Competitors(context.Context, float64, float64, int, string) ([]overpass.Competitor, error) {
	return make([]overpass.Competitor, 3), nil
}

func (fakeOSM) TransitStops(context.Context, float64, float64, int) (*overpass.TransitSummary, error) {
	d := 180.0
	return &overpass.TransitSummary{NearestMetroM: &d}, nil
}

func (fakeOSM) WalkabilityPOIs(context.Context, float64, float64, int) (int, error) {
	return 55, nil
}

type fakeStatfin struct{}

func (fakeStatfin) DemographicsByPostalCode(context.Context, string) (*statfin.Demographics, error) {
	return &statfin.Demographics{PostalCode: "00120", AreaName: "Punavuori", MedianIncome: 38000, PopulationDensity: 11200}, nil
}

type fakePopulation struct{}

func (fakePopulation) PopulationNear(context.Context, float64, float64, int) (int, float64, error) {
	return 15000, 12500, nil
}

type testEnv struct {
	server *Server
	store  store.Store
	jobs   *job.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	collector := features.NewCollector(fakeGeocoder{}, fakeOSM{}, fakeStatfin{}, fakePopulation{})
	gen := generator.New(fakeGeocoder{}, fakeOSM{}, fakePopulation{})
	jobs := job.NewRegistry(0)
	srv := New(st, collector, gen, learner.New(st), jobs, time.Minute)
	return &testEnv{server: srv, store: st, jobs: jobs}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedConcepts(t *testing.T) {
	t.Helper()
	_, err := seed.Ensure(context.Background(), e.store)
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestScore_Validation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodPost, "/api/score", map[string]any{"category": "qsr"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/score", map[string]any{"address": "Fredrikinkatu 22"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/score", map[string]any{
		"address": "Fredrikinkatu 22", "concept_id": uuid.New().String(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScore_ByAddress(t *testing.T) {
	e := newTestEnv(t)
	e.seedConcepts(t)

	rec := e.request(t, http.MethodPost, "/api/score", map[string]any{
		"address": "Fredrikinkatu 22, Helsinki", "category": "qsr",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.PredictionID)
	assert.NotEmpty(t, resp.ConceptID)
	assert.GreaterOrEqual(t, resp.Score, 0.0)
	assert.LessOrEqual(t, resp.Score, 100.0)
	assert.Greater(t, resp.RevenueHighEUR, resp.RevenueLowEUR)
	assert.NotEmpty(t, resp.Recommendation)
	assert.Len(t, resp.Components, 5)

	// Trust metrics ride along with the engine's own confidence.
	assert.Greater(t, resp.DataConfidence, 0.0)
	assert.LessOrEqual(t, resp.DataConfidence, 1.0)
	assert.Greater(t, resp.Coverage.Overall, 0.0)

	// The prediction is queryable afterwards and snapshots the features.
	p, err := e.store.GetPrediction(context.Background(), resp.PredictionID)
	require.NoError(t, err)
	assert.Equal(t, resp.Score, p.Score)
	require.NotNil(t, p.Features)
	assert.True(t, p.Features.MedianIncome.Measured)
}

func TestScore_ByCoordinates(t *testing.T) {
	e := newTestEnv(t)
	e.seedConcepts(t)

	rec := e.request(t, http.MethodPost, "/api/score", map[string]any{
		"lat": 60.1648, "lng": 24.9402, "category": "coffee",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.PredictionID)
	assert.Equal(t, "Fredrikinkatu 22, 00120 Helsinki", resp.Address)
}

func TestScore_UnresolvableAddress(t *testing.T) {
	e := newTestEnv(t)
	e.seedConcepts(t)

	rec := e.request(t, http.MethodPost, "/api/score", map[string]any{
		"address": "Nowhere 1, Atlantis", "category": "qsr",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutcome_Lifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.seedConcepts(t)

	// Score first to get a prediction.
	rec := e.request(t, http.MethodPost, "/api/score", map[string]any{
		"address": "Fredrikinkatu 22, Helsinki", "category": "qsr",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var scored scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scored))

	rec = e.request(t, http.MethodPost, "/api/outcomes", map[string]any{
		"prediction_id": scored.PredictionID, "actual_revenue_eur": 120000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result learner.OutcomeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.OutcomesCount)
	// The system default forked into a trainable concept.
	assert.NotEqual(t, scored.ConceptID, result.ConceptID)

	// Second submission conflicts.
	rec = e.request(t, http.MethodPost, "/api/outcomes", map[string]any{
		"prediction_id": scored.PredictionID, "actual_revenue_eur": 120000,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOutcome_Validation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodPost, "/api/outcomes", map[string]any{"actual_revenue_eur": 5000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/outcomes", map[string]any{
		"prediction_id": "p-1", "actual_revenue_eur": -5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/outcomes", map[string]any{
		"prediction_id": uuid.New().String(), "actual_revenue_eur": 5000,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConcepts(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodGet, "/api/concepts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	e.seedConcepts(t)
	rec = e.request(t, http.MethodGet, "/api/concepts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var concepts []model.Concept
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &concepts))
	assert.Len(t, concepts, 5)
}

func TestConceptStats_NotFound(t *testing.T) {
	e := newTestEnv(t)
	rec := e.request(t, http.MethodGet, "/api/concepts/"+uuid.New().String()+"/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecommend_RunsToCompletion(t *testing.T) {
	e := newTestEnv(t)
	e.seedConcepts(t)

	rec := e.request(t, http.MethodPost, "/api/recommend", map[string]any{
		"city": "helsinki", "category": "qsr", "limit": 3,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		j, err := e.jobs.Get(jobID)
		return err == nil && j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = e.request(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var j job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &j))
	assert.Equal(t, job.StatusComplete, j.Status)

	var result recommendResult
	require.NoError(t, json.Unmarshal(j.Result, &result))
	assert.Equal(t, "helsinki", result.City)
	require.Len(t, result.Candidates, 3)
	require.Len(t, result.PredictionIDs, 3)

	// Candidate predictions are real, outcome-ready rows.
	p, err := e.store.GetPrediction(context.Background(), result.PredictionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, p.Rank)
	assert.Equal(t, result.ConceptID, p.ConceptID)
}

func TestRecommend_Validation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodPost, "/api/recommend", map[string]any{"category": "qsr"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/recommend", map[string]any{
		"city": "helsinki", "concept_id": uuid.New().String(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJob_NotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodGet, "/api/jobs/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.request(t, http.MethodGet, "/api/jobs/"+uuid.New().String()+"/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEvents_StreamsAndEnds(t *testing.T) {
	e := newTestEnv(t)

	// A finished job replays its history and closes the stream.
	j := e.jobs.Create([]string{"resolve"})
	e.jobs.EmitStage(j.ID, "resolve", job.StageDone, "areas resolved")
	e.jobs.Complete(j.ID, map[string]int{"candidates": 2})

	rec := e.request(t, http.MethodGet, "/api/jobs/"+j.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"stage":"resolve"`)
	assert.Contains(t, body, `"final":"complete"`)
	assert.Contains(t, body, "event: end")
}
