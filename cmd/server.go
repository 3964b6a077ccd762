package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/adminkit/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the admin API server",
	Long: `Starts the admin API server. Usage:

	apiserver server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := newLogger(cfg)

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Error("failed to start server", slog.Any("error", err))
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("server error", slog.Any("error", err))
			}
			return err
		case <-cmd.Context().Done():
		}

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
