package main

import (
	"context"
	"fmt"

	"gateway-reconciler/internal/config"
	"gateway-reconciler/internal/database"
	"gateway-reconciler/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the order, transaction and notification tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Env)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx := context.Background()
			db, err := database.Open(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db.DB(), db.Dialect()); err != nil {
				return err
			}
			log.Info("Migrations applied", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
