package application

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
)

// MockPaymentGateway implements PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Capture(ctx context.Context, b *booking.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) Void(ctx context.Context, paymentID string) error {
	args := m.Called(ctx, paymentID)
	return args.Error(0)
}

// MockConfirmGuard implements ConfirmGuard
type MockConfirmGuard struct {
	mock.Mock
}

func (m *MockConfirmGuard) Guard(ctx context.Context, requesterID string, unitIDs []string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, requesterID, unitIDs, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

// MockAvailabilityCache implements AvailabilityCache
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) GetAvailableCount(ctx context.Context, resourceID string) (int, error) {
	args := m.Called(ctx, resourceID)
	return args.Int(0), args.Error(1)
}

func (m *MockAvailabilityCache) SetAvailableCount(ctx context.Context, resourceID string, count int, ttl time.Duration) error {
	args := m.Called(ctx, resourceID, count, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, resourceIDs ...string) error {
	args := m.Called(ctx, resourceIDs)
	return args.Error(0)
}

func (m *MockAvailabilityCache) IsMiss(err error) bool {
	args := m.Called(err)
	return args.Bool(0)
}

// recordingPublisher は配信されたイベントを保持する
type recordingPublisher struct {
	mu     sync.Mutex
	events []booking.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev booking.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Types() []booking.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]booking.EventType, 0, len(p.events))
	for _, ev := range p.events {
		types = append(types, ev.Type)
	}
	return types
}

// clockAdvancingGateway は決済中に時計を進める
type clockAdvancingGateway struct {
	advance func()
	voided  []string
}

func (g *clockAdvancingGateway) Capture(ctx context.Context, b *booking.Booking) (string, error) {
	g.advance()
	return "pay-" + b.ID, nil
}

func (g *clockAdvancingGateway) Void(ctx context.Context, paymentID string) error {
	g.voided = append(g.voided, paymentID)
	return nil
}
