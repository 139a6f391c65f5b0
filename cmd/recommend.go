package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nessa01macias/spotlight/internal/generator"
	"github.com/nessa01macias/spotlight/internal/model"
)

var (
	recommendCity     string
	recommendCategory string
	recommendLimit    int
	recommendCrime    bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate ranked site candidates for a city",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if recommendCity == "" {
			return eris.New("--city is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var concept *model.Concept
		if recommendCategory != "" {
			concept, err = env.Store.GetActiveConcept(ctx, recommendCategory)
			if err != nil {
				return err
			}
		}

		report := func(stage, status, message string) {
			if message != "" {
				fmt.Fprintf(os.Stderr, "%-22s %-8s %s\n", stage, status, message)
			} else {
				fmt.Fprintf(os.Stderr, "%-22s %s\n", stage, status)
			}
		}

		candidates, err := env.Generator.Generate(ctx, generator.Params{
			City:         recommendCity,
			Category:     recommendCategory,
			Concept:      concept,
			Limit:        recommendLimit,
			IncludeCrime: recommendCrime,
		}, report)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidates)
	},
}

func init() {
	recommendCmd.Flags().StringVar(&recommendCity, "city", "", "city to search")
	recommendCmd.Flags().StringVar(&recommendCategory, "category", "", "concept category")
	recommendCmd.Flags().IntVar(&recommendLimit, "limit", 10, "maximum candidates to return")
	recommendCmd.Flags().BoolVar(&recommendCrime, "include-crime", false, "apply the crime penalty factor")
	rootCmd.AddCommand(recommendCmd)
}
