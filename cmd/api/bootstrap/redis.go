package bootstrap

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/redis"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

// RedisModule は確定ガードと空き数キャッシュを提供する。Redis 無効時はどちらも nil
var RedisModule = fx.Module("redis",
	fx.Provide(
		NewRedisClient,
		NewAvailabilityCache,
		NewConfirmGuard,
	),
)

// NewRedisClient は REDIS_ENABLED=false または接続できない場合 nil を返す
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) *goredis.Client {
	if !cfg.Redis.Enabled {
		logger.Info("Redisは無効です")
		return nil
	}

	client, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Redisに接続できないため、Redisなしで起動します", zap.Error(err))
		return nil
	}
	logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewAvailabilityCache(client *goredis.Client) application.AvailabilityCache {
	if client == nil {
		return nil
	}
	return redis.NewAvailabilityCache(client)
}

func NewConfirmGuard(client *goredis.Client, m *metrics.Metrics) application.ConfirmGuard {
	if client == nil {
		return nil
	}
	return redis.NewLockManager(client, m)
}
