package main

import (
	"github.com/spf13/cobra"

	"notehub/internal/database"
	"notehub/internal/database/migration"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the notes schema if it is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := setup()
			ctx := cmd.Context()

			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return migration.EnsureMigrated(ctx, db, log, cfg.Database.Host)
		},
	}
}
