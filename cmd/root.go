package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adminkit/apiserver/config"
	"github.com/adminkit/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "apiserver",
	Short:         "Admin backend with RBAC, CSRF protection and a translation editor",
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
// SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	return config.LoadConfig()
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}
