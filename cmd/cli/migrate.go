package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Connects to the configured Postgres database and applies all embedded schema migrations that have not run yet.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// NewDatabase runs pending migrations as part of connecting.
		_, cleanup, err := db.NewDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer cleanup()

		slog.Info("database schema is up to date",
			"host", cfg.Database.Host,
			"database", cfg.Database.Database)
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(migrateCmd)
}
