package bootstrap

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

var CoreModule = fx.Module("core",
	fx.Provide(
		NewLogger,
		NewRegistry,
		NewMetrics,
	),
	fx.Invoke(func(*zap.Logger) {}),
)

// ClockModule は実時間の時計を提供する。テストでは差し替える
var ClockModule = fx.Provide(clock.NewRealClock)

// NewLogger は設定に従ってパッケージロガーを差し替える
func NewLogger(lc fx.Lifecycle, cfg *config.Config) *zap.Logger {
	l := logger.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	logger.Set(l)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return l
}

// NewRegistry はアプリケーション専用のメトリクスレジストリを作成する
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.NewWithRegistry(reg)
}
