package application

import (
	"context"
	"time"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
)

// AvailabilityCache は空きユニット数のキャッシュ。Redis 無効時は nil
type AvailabilityCache interface {
	GetAvailableCount(ctx context.Context, resourceID string) (int, error)
	SetAvailableCount(ctx context.Context, resourceID string, count int, ttl time.Duration) error
	Invalidate(ctx context.Context, resourceIDs ...string) error
	IsMiss(err error) bool
}

// ConfirmGuard は同じ利用者・同じユニット集合の確定処理を1つにまとめる。Redis 無効時は nil
type ConfirmGuard interface {
	Guard(ctx context.Context, requesterID string, unitIDs []string, ttl time.Duration) (release func(context.Context) error, err error)
}

// EventPublisher は予約イベントの配信先。Kafka 無効時は nil
type EventPublisher interface {
	Publish(ctx context.Context, ev booking.Event) error
}

// PaymentGateway は決済の確保と取り消し
type PaymentGateway interface {
	Capture(ctx context.Context, b *booking.Booking) (paymentID string, err error)
	Void(ctx context.Context, paymentID string) error
}
