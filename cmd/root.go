package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nessa01macias/spotlight/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spotlight",
	Short: "Location opportunity scoring for restaurant concepts",
	Long:  "Scores candidate commercial locations against a business concept, generates ranked site recommendations, and learns better parameters from reported opening outcomes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := cfg.Validate(cmd.Name()); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
