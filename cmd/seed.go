package cmd

import (
	"log/slog"

	"github.com/adminkit/apiserver/internal/server"
	"github.com/adminkit/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var seedPassword string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default roles, permissions and the su/dev accounts",
	Long: `Creates the superuser and developer roles, CRUD permissions for
permissions, roles and users, and the su and dev accounts. Running it
again leaves existing rows untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := newLogger(cfg)

		deps, err := server.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := services.NewSeeder(deps.Store, deps.Hasher, logger, seedPassword).Run(cmd.Context()); err != nil {
			logger.Error("seed failed", slog.Any("error", err))
			return err
		}
		logger.Info("seed complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedPassword, "password", "password", "password of the seeded accounts")
}
