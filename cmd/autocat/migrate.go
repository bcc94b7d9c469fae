package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Other commands migrate on startup as well; this command is useful for
provisioning a database ahead of time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			slog.Info("Running database migrations", "database", settings.DatabasePath)

			_, cleanup, err := initStorage(cmd.Context(), settings)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			cleanup()

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database is up to date: "+settings.DatabasePath))
			return nil
		},
	}
}
