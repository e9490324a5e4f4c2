package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/infrastructure/kafka"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

var KafkaModule = fx.Module("kafka",
	fx.Provide(NewEventPublisher),
)

// NewEventPublisher は KAFKA_BROKERS 未設定なら nil を返す
func NewEventPublisher(lc fx.Lifecycle, cfg *config.Config) application.EventPublisher {
	if !cfg.Kafka.Enabled() {
		return nil
	}

	publisher := kafka.NewBookingPublisher(kafka.NewWriter(&cfg.Kafka))
	logger.Info("予約イベントをKafkaに配信します",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}
