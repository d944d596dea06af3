package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/internal/persistence"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded SQL migrations to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required to migrate")
			}
			logger, err := observability.NewLogger(cfg.Logger, cfg.App)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()

			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
