package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinoosan/payments/internal/config"
	pgstore "github.com/tinoosan/payments/internal/storage/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			logger := buildLogger(cfg.LogLevel, cfg.LogFormat)

			pg, err := pgstore.Open(cmd.Context(), cfg.DatabaseURL, pgstore.WithMaxConns(2))
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()

			applied, err := pg.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				logger.Info("schema up to date")
				return nil
			}
			logger.Info("migrations applied", "versions", applied)
			return nil
		},
	}
}
