package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ontohub/internal/platform/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dbCfg := cfg.Database
			if databaseURL != "" {
				dbCfg.URL = databaseURL
			}

			db, err := database.Open(dbCfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := database.MigrateContext(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied to %s\n", dbCfg.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database", "", "Database URL (overrides database.url)")
	return cmd
}
