package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/internal/scoring"
	"github.com/nessa01macias/spotlight/internal/trust"
)

var (
	scoreAddress  string
	scoreCategory string
	scoreConcept  string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single address for a concept",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if scoreAddress == "" {
			return eris.New("--address is required")
		}
		if scoreCategory == "" && scoreConcept == "" {
			return eris.New("--category or --concept is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var concept *model.Concept
		if scoreConcept != "" {
			concept, err = env.Store.GetConcept(ctx, scoreConcept)
		} else {
			concept, err = env.Store.GetActiveConcept(ctx, scoreCategory)
		}
		if err != nil {
			return err
		}

		feats, err := env.Collector.CollectAddress(ctx, scoreAddress, concept.Category)
		if err != nil {
			return err
		}

		result, err := scoring.Score(*feats, concept)
		if err != nil {
			return err
		}

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
		if err := env.Store.CreatePrediction(ctx, prediction); err != nil {
			return err
		}

		coverage := trust.CoverageOf(*feats)
		out := map[string]any{
			"prediction_id":   prediction.ID,
			"concept":         concept.Name,
			"result":          result,
			"coverage":        coverage,
			"data_confidence": trust.Confidence(result.Components, coverage, *feats),
			"recommendation":  prediction.Recommendation,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreAddress, "address", "", "street address to score")
	scoreCmd.Flags().StringVar(&scoreCategory, "category", "", "concept category (e.g. qsr, coffee)")
	scoreCmd.Flags().StringVar(&scoreConcept, "concept", "", "explicit concept id")
	rootCmd.AddCommand(scoreCmd)
}
