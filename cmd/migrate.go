package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"referralhub/internal/config"
	"referralhub/internal/model"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and idempotency indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := config.NewDB(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			if err := model.AutoMigrate(db); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			logger.Info("database migration completed", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
