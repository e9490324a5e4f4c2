package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/cmd/api/bootstrap"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var (
		driver    string
		migrateUp bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "APIサーバーと期限切れ保留のスイーパーを起動",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(driver)
			if err != nil {
				return err
			}

			app := fx.New(
				fx.Supply(cfg),
				bootstrap.Module,
				fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: l.Named("fx")}
				}),
				fx.Invoke(func(lc fx.Lifecycle, storage *bootstrap.Storage) {
					if !migrateUp || storage.DB == nil {
						return
					}
					lc.Append(fx.Hook{
						OnStart: func(_ context.Context) error {
							logger.Info("マイグレーションを適用します")
							return postgres.RunMigrations(storage.DB.DB)
						},
					})
				}),
			)

			app.Run()
			return app.Err()
		},
	}

	cmd.Flags().StringVar(&driver, "store", "", "保存先（postgres|memory）。未指定なら STORE_DRIVER")
	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "起動時にマイグレーションを適用する")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

// runCommand は HTTP なしの依存を組み立てて fn を実行する。fn は組み立ての途中で呼ばれる
func runCommand(ctx context.Context, cfg *config.Config, fn interface{}) error {
	app := fx.New(
		fx.Supply(cfg),
		bootstrap.CommandModule,
		fx.NopLogger,
		fx.Invoke(fn),
	)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(context.Background())
}
