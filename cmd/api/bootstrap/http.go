package bootstrap

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/api/handler"
	"github.com/sanosuguru/go-reservation-engine/internal/api/middleware"
	"github.com/sanosuguru/go-reservation-engine/internal/api/router"
	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/redis"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/auth"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

var HTTPModule = fx.Module("http",
	fx.Provide(
		NewTokenService,
		middleware.NewAuthenticator,
		NewUnitHandler,
		NewBookingHandler,
		NewHealthHandler,
		NewEcho,
	),
)

// ServerModule は HTTP サーバーを起動する
var ServerModule = fx.Module("server",
	fx.Invoke(StartServer),
)

func NewTokenService(cfg *config.Config) *auth.TokenService {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET が未設定のため X-User-ID ヘッダーで利用者を識別します")
	}
	return auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
}

func NewUnitHandler(units *application.UnitService, locks *application.LockService) *handler.UnitHandler {
	return handler.NewUnitHandler(units, locks)
}

func NewBookingHandler(coordinator *application.BookingCoordinator, ledger *application.LedgerService) *handler.BookingHandler {
	return handler.NewBookingHandler(coordinator, ledger)
}

func NewHealthHandler(storage *Storage, client *goredis.Client) *handler.HealthHandler {
	checks := []handler.HealthCheck{{Name: "database", Check: storage.Ping}}
	if client != nil {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redis.Ping(ctx, client) },
		})
	}
	return handler.NewHealthHandler(checks...)
}

type echoParams struct {
	fx.In

	Config   *config.Config
	Units    *handler.UnitHandler
	Bookings *handler.BookingHandler
	Health   *handler.HealthHandler
	Auth     *middleware.Authenticator
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

func NewEcho(p echoParams) *echo.Echo {
	e := router.New(router.Handlers{
		Units:    p.Units,
		Bookings: p.Bookings,
		Health:   p.Health,
	}, p.Auth, router.Options{
		AllowOrigins:   p.Config.Server.AllowOrigins,
		Metrics:        p.Metrics,
		MetricsHandler: promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}),
		MetricsAuth:    p.Config.Metrics,
	})
	e.Server.ReadTimeout = p.Config.Server.ReadTimeout
	e.Server.WriteTimeout = p.Config.Server.WriteTimeout
	return e
}

// StartServer は Echo の起動と停止をライフサイクルに登録する
func StartServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, e *echo.Echo, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := ":" + cfg.Server.Port
			logger.Info("サーバーを起動します", zap.String("address", addr), zap.String("env", cfg.App.Env))
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("サーバー起動エラー", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("サーバーをシャットダウンしています...")
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return e.Shutdown(ctx)
		},
	})
}
