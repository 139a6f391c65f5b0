package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nessa01macias/spotlight/internal/generator"
	"github.com/nessa01macias/spotlight/internal/job"
	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/internal/scoring"
	"github.com/nessa01macias/spotlight/internal/trust"
)

type scoreRequest struct {
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
	ConceptID string   `json:"concept_id,omitempty"`
	Category  string   `json:"category,omitempty"`
}

type scoreResponse struct {
	PredictionID   string              `json:"prediction_id"`
	ConceptID      string              `json:"concept_id,omitempty"`
	Address        string              `json:"address,omitempty"`
	Score          float64             `json:"score"`
	RevenueLowEUR  int                 `json:"revenue_low_eur"`
	RevenueMidEUR  int                 `json:"revenue_mid_eur"`
	RevenueHighEUR int                 `json:"revenue_high_eur"`
	Confidence     float64             `json:"confidence"`
	DataConfidence float64             `json:"data_confidence"`
	Components     map[string]float64  `json:"components"`
	Coverage       trust.Coverage      `json:"coverage"`
	Recommendation string              `json:"recommendation"`
	Features       *model.SiteFeatures `json:"features"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Address == "" && (req.Latitude == nil || req.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "address or lat/lng required")
		return
	}
	if req.ConceptID == "" && req.Category == "" {
		writeError(w, http.StatusBadRequest, "concept_id or category required")
		return
	}

	concept, err := s.resolveConcept(r.Context(), req.ConceptID, req.Category)
	if err != nil {
		if eris.Is(err, model.ErrConceptNotFound) {
			writeError(w, http.StatusNotFound, "concept not found")
			return
		}
		s.internalError(w, err)
		return
	}

	var feats *model.SiteFeatures
	if req.Address != "" {
		feats, err = s.collector.CollectAddress(r.Context(), req.Address, concept.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, "address could not be resolved")
			return
		}
	} else {
		feats = s.collector.CollectPoint(r.Context(), *req.Latitude, *req.Longitude, concept.Category)
	}

	result, err := scoring.Score(*feats, concept)
	if err != nil {
		s.internalError(w, err)
		return
	}
	coverage := trust.CoverageOf(*feats)
	dataConfidence := trust.Confidence(result.Components, coverage, *feats)

	prediction := &model.Prediction{
		ID:             uuid.New().String(),
		ConceptID:      concept.ID,
		Address:        feats.Address,
		AreaName:       feats.AreaName,
		Latitude:       feats.Latitude,
		Longitude:      feats.Longitude,
		PostalCode:     feats.PostalCode,
		Score:          result.Score,
		RevenueLow:     float64(result.RevenueLow),
		RevenueMid:     float64(result.RevenueMid),
		RevenueHigh:    float64(result.RevenueHigh),
		Confidence:     result.Confidence,
		Features:       feats,
		Recommendation: scoring.Recommendation(result.Score),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreatePrediction(r.Context(), prediction); err != nil {
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{
		PredictionID:   prediction.ID,
		ConceptID:      concept.ID,
		Address:        feats.Address,
		Score:          result.Score,
		RevenueLowEUR:  result.RevenueLow,
		RevenueMidEUR:  result.RevenueMid,
		RevenueHighEUR: result.RevenueHigh,
		Confidence:     result.Confidence,
		DataConfidence: dataConfidence,
		Components:     result.Components,
		Coverage:       coverage,
		Recommendation: prediction.Recommendation,
		Features:       feats,
	})
}

type recommendRequest struct {
	City         string `json:"city"`
	Category     string `json:"category,omitempty"`
	ConceptID    string `json:"concept_id,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	IncludeCrime bool   `json:"include_crime,omitempty"`
}

type recommendResult struct {
	City       string            `json:"city"`
	ConceptID  string            `json:"concept_id,omitempty"`
	Candidates []model.Candidate `json:"candidates"`
	// PredictionIDs aligns with Candidates; outcomes reference these.
	PredictionIDs []string `json:"prediction_ids"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.City == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}

	concept, err := s.resolveConcept(r.Context(), req.ConceptID, req.Category)
	if err != nil && !eris.Is(err, model.ErrConceptNotFound) {
		s.internalError(w, err)
		return
	}
	if req.ConceptID != "" && concept == nil {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}

	j := s.jobs.Create(generator.Stages)

	params := generator.Params{
		City:         req.City,
		Category:     req.Category,
		Concept:      concept,
		Limit:        req.Limit,
		IncludeCrime: req.IncludeCrime,
	}
	// Fire and forget; the caller polls or streams by job id. The pipeline
	// carries its own context because the request's ends at the 202.
	go s.runRecommendation(context.Background(), j.ID, params)

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": j.ID})
}

func (s *Server) runRecommendation(ctx context.Context, jobID string, params generator.Params) {
	report := func(stage, status, message string) {
		s.jobs.EmitStage(jobID, stage, job.StageStatus(status), message)
	}

	candidates, err := s.generator.Generate(ctx, params, report)
	if err != nil {
		s.log.Error("recommendation pipeline failed", zap.String("job_id", jobID), zap.Error(err))
		s.jobs.Fail(jobID, err)
		return
	}

	conceptID := ""
	if params.Concept != nil {
		conceptID = params.Concept.ID
	}

	predictionIDs := make([]string, len(candidates))
	for i, c := range candidates {
		p := &model.Prediction{
			ID:             uuid.New().String(),
			ConceptID:      conceptID,
			Address:        c.Address,
			Latitude:       c.Latitude,
			Longitude:      c.Longitude,
			Score:          c.Score,
			RevenueLow:     float64(c.RevenueMinEUR),
			RevenueMid:     float64(c.RevenueMinEUR+c.RevenueMaxEUR) / 2,
			RevenueHigh:    float64(c.RevenueMaxEUR),
			Confidence:     c.Confidence,
			Rank:           c.Rank,
			Recommendation: c.Decision,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.CreatePrediction(ctx, p); err != nil {
			s.log.Warn("persist candidate prediction",
				zap.String("job_id", jobID), zap.String("address", c.Address), zap.Error(err))
			continue
		}
		predictionIDs[i] = p.ID
	}

	s.jobs.Complete(jobID, recommendResult{
		City:          params.City,
		ConceptID:     conceptID,
		Candidates:    candidates,
		PredictionIDs: predictionIDs,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel, err := s.jobs.Subscribe(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				if _, err := w.Write([]byte("event: end\ndata: {}\n\n")); err != nil {
					return
				}
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type outcomeRequest struct {
	PredictionID  string    `json:"prediction_id"`
	ActualRevenue float64   `json:"actual_revenue_eur"`
	OpenedAt      time.Time `json:"opened_at"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PredictionID == "" {
		writeError(w, http.StatusBadRequest, "prediction_id is required")
		return
	}
	if req.ActualRevenue <= 0 {
		writeError(w, http.StatusBadRequest, "actual_revenue_eur must be positive")
		return
	}
	if req.OpenedAt.IsZero() {
		req.OpenedAt = time.Now().UTC()
	}

	result, err := s.learner.RecordOutcome(r.Context(), req.PredictionID, req.ActualRevenue, req.OpenedAt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, result)
	case eris.Is(err, model.ErrPredictionNotFound):
		writeError(w, http.StatusNotFound, "prediction not found")
	case eris.Is(err, model.ErrDuplicateOutcome):
		writeError(w, http.StatusConflict, "outcome already recorded for this prediction")
	default:
		s.internalError(w, err)
	}
}

func (s *Server) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := s.store.ListConcepts(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	if concepts == nil {
		concepts = []model.Concept{}
	}
	writeJSON(w, http.StatusOK, concepts)
}

func (s *Server) handleConceptStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.learner.Stats(r.Context(), chi.URLParam(r, "conceptID"))
	if err != nil {
		if eris.Is(err, model.ErrConceptNotFound) {
			writeError(w, http.StatusNotFound, "concept not found")
			return
		}
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// resolveConcept picks an explicit concept by id, or the active concept for
// a category.
func (s *Server) resolveConcept(ctx context.Context, conceptID, category string) (*model.Concept, error) {
	if conceptID != "" {
		return s.store.GetConcept(ctx, conceptID)
	}
	if category != "" {
		return s.store.GetActiveConcept(ctx, category)
	}
	return nil, eris.Wrap(model.ErrConceptNotFound, "no concept or category given")
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
