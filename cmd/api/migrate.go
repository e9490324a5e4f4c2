package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "データベースのマイグレーション",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "未適用のマイグレーションをすべて適用",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.StoreDriverPostgres)
			if err != nil {
				return err
			}
			db, err := postgres.NewConnection(&cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.RunMigrations(db.DB); err != nil {
				return err
			}
			logger.Info("マイグレーションを適用しました")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "マイグレーションを戻す",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps は1以上を指定してください")
			}
			cfg, err := loadConfig(config.StoreDriverPostgres)
			if err != nil {
				return err
			}
			db, err := postgres.NewConnection(&cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.RollbackMigrations(db.DB, steps); err != nil {
				return err
			}
			logger.Info(fmt.Sprintf("マイグレーションを%d件戻しました", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "戻す件数")
	cmd.AddCommand(down)

	return cmd
}
