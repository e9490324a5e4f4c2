package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/worker"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(NewSweeper),
	fx.Invoke(StartSweeper),
)

func NewSweeper(units *application.UnitService, ledger *application.LedgerService, cfg *config.Config) *worker.ExpiredHoldSweeper {
	return worker.NewExpiredHoldSweeper(units, ledger, cfg.Reservation.SweepInterval, cfg.Reservation.PendingBookingTimeout)
}

// StartSweeper はスイーパーをサーバーと同じライフサイクルで動かす
func StartSweeper(lc fx.Lifecycle, sweeper *worker.ExpiredHoldSweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go sweeper.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			sweeper.Stop()
			cancel()
			return nil
		},
	})
}
