package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

// SimulatedGateway は外部決済の代わりに一定時間待つだけのゲートウェイ
type SimulatedGateway struct {
	delay time.Duration
}

func NewSimulatedGateway(delay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{delay: delay}
}

func (g *SimulatedGateway) Capture(ctx context.Context, b *booking.Booking) (string, error) {
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	paymentID := "sim_" + uuid.New().String()
	logger.Debug("決済を確保しました",
		zap.String("booking_id", b.ID),
		zap.String("payment_id", paymentID),
		zap.Int("amount", b.TotalAmount),
	)
	return paymentID, nil
}

func (g *SimulatedGateway) Void(ctx context.Context, paymentID string) error {
	logger.Info("決済を取り消しました", zap.String("payment_id", paymentID))
	return nil
}
