package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	outcomePrediction string
	outcomeRevenue    float64
	outcomeOpenedAt   string
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record actual revenue for a prediction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if outcomePrediction == "" {
			return eris.New("--prediction is required")
		}
		if outcomeRevenue <= 0 {
			return eris.New("--revenue must be positive")
		}

		openedAt := time.Now().UTC()
		if outcomeOpenedAt != "" {
			parsed, err := time.Parse("2006-01-02", outcomeOpenedAt)
			if err != nil {
				return eris.Wrap(err, "parse --opened-at (expected YYYY-MM-DD)")
			}
			openedAt = parsed
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Learner.RecordOutcome(ctx, outcomePrediction, outcomeRevenue, openedAt)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var statsConcept string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning progress for a concept",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if statsConcept == "" {
			return eris.New("--concept is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Learner.Stats(ctx, statsConcept)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	outcomeCmd.Flags().StringVar(&outcomePrediction, "prediction", "", "prediction id the outcome belongs to")
	outcomeCmd.Flags().Float64Var(&outcomeRevenue, "revenue", 0, "actual monthly revenue in EUR")
	outcomeCmd.Flags().StringVar(&outcomeOpenedAt, "opened-at", "", "opening date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(outcomeCmd)

	statsCmd.Flags().StringVar(&statsConcept, "concept", "", "concept id")
	rootCmd.AddCommand(statsCmd)
}
