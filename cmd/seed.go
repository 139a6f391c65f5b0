package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nessa01macias/spotlight/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the default concept catalog into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := seed.Ensure(ctx, st)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete", zap.Int("inserted", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
