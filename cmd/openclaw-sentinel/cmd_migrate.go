package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/config"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the PostgreSQL schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(store.MigrateUp), string(store.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			if cfg.Store.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate: store.backend is %q; migrations apply to postgres only", cfg.Store.Backend)
			}

			direction := store.MigrateUp
			if len(args) == 1 {
				direction = store.MigrateDirection(args[0])
			}
			if direction != store.MigrateUp && direction != store.MigrateDown {
				return fmt.Errorf("migrate: unknown direction %q (use up or down)", args[0])
			}

			if err := store.RunMigrations(cfg.Postgres.DSN, direction, logger); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Printf("Migrations applied (%s).\n", direction)
			return nil
		},
	}
}
