// Package server exposes the scoring, recommendation and outcome API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nessa01macias/spotlight/internal/features"
	"github.com/nessa01macias/spotlight/internal/generator"
	"github.com/nessa01macias/spotlight/internal/job"
	"github.com/nessa01macias/spotlight/internal/learner"
	"github.com/nessa01macias/spotlight/internal/store"
)

// Server wires the HTTP API over the core subsystems.
type Server struct {
	store     store.Store
	collector *features.Collector
	generator *generator.Generator
	learner   *learner.Learner
	jobs      *job.Registry
	keepalive time.Duration
	log       *zap.Logger
}

// New assembles a Server. keepalive bounds the idle gap on event streams.
func New(st store.Store, collector *features.Collector, gen *generator.Generator, lrn *learner.Learner, jobs *job.Registry, keepalive time.Duration) *Server {
	if keepalive <= 0 {
		keepalive = time.Minute
	}
	return &Server{
		store:     st,
		collector: collector,
		generator: gen,
		learner:   lrn,
		jobs:      jobs,
		keepalive: keepalive,
		log:       zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/score", s.handleScore)
		r.Post("/recommend", s.handleRecommend)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/jobs/{jobID}/events", s.handleJobEvents)
		r.Post("/outcomes", s.handleOutcome)
		r.Get("/concepts", s.handleListConcepts)
		r.Get("/concepts/{conceptID}/stats", s.handleConceptStats)
	})
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
