package bootstrap

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/memory"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

var StorageModule = fx.Module("storage",
	fx.Provide(
		NewStorage,
		func(s *Storage) unit.Repository { return s.Units },
		func(s *Storage) booking.Repository { return s.Bookings },
		func(s *Storage) transaction.Manager { return s.TxManager },
	),
)

// Storage は STORE_DRIVER に応じたリポジトリ一式
type Storage struct {
	Units     unit.Repository
	Bookings  booking.Repository
	TxManager transaction.Manager
	DB        *sqlx.DB // memory のときは nil
}

// Ping は保存先の疎通を確認する
func (s *Storage) Ping(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return postgres.Ping(ctx, s.DB)
}

func NewStorage(lc fx.Lifecycle, cfg *config.Config) (*Storage, error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		logger.Warn("インメモリストアで起動します。再起動でデータは失われます")
		store := memory.NewStore()
		return &Storage{
			Units:     memory.NewUnitRepository(store),
			Bookings:  memory.NewBookingRepository(store),
			TxManager: store,
		}, nil
	}

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("データベースに接続しました",
		zap.String("host", cfg.Database.Host),
		zap.String("dbname", cfg.Database.DBName),
	)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return db.Close()
		},
	})

	return &Storage{
		Units:     postgres.NewUnitRepository(db),
		Bookings:  postgres.NewBookingRepository(db),
		TxManager: postgres.NewTxManager(db),
		DB:        db,
	}, nil
}
