package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adminkit/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var (
	pruneInterval time.Duration
	csrfGrace     time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued mail and prune expired CSRF and revoked tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := newLogger(cfg)
		ctx := cmd.Context()

		deps, err := server.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer deps.Close()

		go prune(ctx, deps, logger)

		worker := deps.MailWorker()
		if worker == nil {
			logger.Warn("no mq backend configured, mail is sent inline by the server")
			<-ctx.Done()
			return nil
		}

		logger.Info("mail worker started", slog.String("backend", cfg.MQ.Backend))
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func prune(ctx context.Context, deps *server.Deps, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := deps.Csrf.Prune(ctx, csrfGrace); err != nil {
			logger.Warn("prune csrf tokens", slog.Any("error", err))
		} else if n > 0 {
			logger.Info("pruned csrf tokens", slog.Int64("count", n))
		}
		if n, err := deps.Revoked.Purge(ctx, time.Now()); err != nil {
			logger.Warn("purge revoked tokens", slog.Any("error", err))
		} else if n > 0 {
			logger.Info("purged revoked tokens", slog.Int64("count", n))
		}
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().DurationVar(&pruneInterval, "prune-interval", 10*time.Minute, "how often expired tokens are deleted")
	workerCmd.Flags().DurationVar(&csrfGrace, "csrf-grace", time.Hour, "how long expired CSRF tokens are kept")
}
