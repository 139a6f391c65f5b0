package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nessa01macias/spotlight/internal/job"
	"github.com/nessa01macias/spotlight/internal/seed"
	"github.com/nessa01macias/spotlight/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if n, err := seed.Ensure(ctx, env.Store); err != nil {
			return err
		} else if n > 0 {
			zap.L().Info("seeded default concepts", zap.Int("count", n))
		}

		registry := job.NewRegistry(time.Duration(cfg.Jobs.TTLSecs) * time.Second)
		go registry.Run(ctx, time.Duration(cfg.Jobs.SweepSecs)*time.Second)

		srv := server.New(env.Store, env.Collector, env.Generator, env.Learner, registry,
			time.Duration(cfg.Jobs.KeepaliveSecs)*time.Second)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.Run(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
