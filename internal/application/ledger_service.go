package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/transaction"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

const staleBatchSize = 100

// LedgerService は予約台帳への追記・参照・キャンセルを扱う
type LedgerService struct {
	bookings  booking.Repository
	unitSvc   *UnitService
	lockSvc   *LockService
	txManager transaction.Manager
	publisher EventPublisher
	clock     clock.Clock
	metrics   *metrics.Metrics
}

func NewLedgerService(
	bookings booking.Repository,
	unitSvc *UnitService,
	lockSvc *LockService,
	txManager transaction.Manager,
	publisher EventPublisher,
	clk clock.Clock,
	m *metrics.Metrics,
) *LedgerService {
	return &LedgerService{
		bookings:  bookings,
		unitSvc:   unitSvc,
		lockSvc:   lockSvc,
		txManager: txManager,
		publisher: publisher,
		clock:     clk,
		metrics:   m,
	}
}

// Append は予約を台帳に追記する。合計金額はドメインの価格と一致しなければならない
func (s *LedgerService) Append(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.TotalAmount != b.Domain.Price(len(b.UnitIDs)) {
		return booking.ErrAmountMismatch
	}
	return s.bookings.Create(ctx, tx, b)
}

// Get は予約を取得する。本人か管理者のみ参照できる
func (s *LedgerService) Get(ctx context.Context, id, requesterID string, isAdmin bool) (*booking.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !b.IsOwnedBy(requesterID) {
		return nil, booking.ErrNotBookingOwner
	}
	return b, nil
}

func (s *LedgerService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if userID == "" {
		return nil, booking.ErrUserIDRequired
	}
	f := booking.Filter{Limit: limit, Offset: offset}.Normalize()
	return s.bookings.ListByUser(ctx, userID, f.Limit, f.Offset)
}

// ListAll は管理者向けに条件付きで予約一覧と総件数を返す
func (s *LedgerService) ListAll(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error) {
	if filter.Domain != "" && !filter.Domain.IsValid() {
		return nil, 0, booking.ErrInvalidDomain
	}
	if filter.Status != "" {
		if _, err := booking.ParseStatus(string(filter.Status)); err != nil {
			return nil, 0, err
		}
	}
	return s.bookings.List(ctx, filter.Normalize())
}

func (s *LedgerService) Stats(ctx context.Context) (*booking.Stats, error) {
	return s.bookings.Stats(ctx)
}

type CancelInput struct {
	BookingID   string
	RequesterID string
	IsAdmin     bool
	Reason      string
}

// Cancel は確定済みの予約をキャンセルし、ユニットを利用可能に戻す
// ユニットを戻せるドメインの予約だけが対象
func (s *LedgerService) Cancel(ctx context.Context, input CancelInput) (*booking.Booking, error) {
	b, err := s.Get(ctx, input.BookingID, input.RequesterID, input.IsAdmin)
	if err != nil {
		return nil, err
	}
	if !b.Domain.Policy().Releasable {
		return nil, booking.ErrCancelNotSupported
	}
	switch b.Status {
	case booking.StatusConfirmed:
	case booking.StatusCancelled:
		return nil, booking.ErrBookingAlreadyCancelled
	default:
		return nil, booking.ErrBookingNotCancellable
	}

	reason := input.Reason
	if reason == "" {
		reason = "利用者によるキャンセル"
	}
	cancelled := b.Clone()
	if err := cancelled.Cancel(reason, s.clock.Now()); err != nil {
		return nil, err
	}

	err = transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.lockSvc.ReleaseBookedUnits(ctx, tx, b.ID, b.UnitIDs); err != nil {
			return err
		}
		return s.bookings.UpdateStatus(ctx, tx, cancelled)
	})
	if err != nil {
		return nil, fmt.Errorf("予約キャンセルに失敗: %w", err)
	}

	s.unitSvc.InvalidateCache(ctx, b.ResourceID)
	s.publish(ctx, booking.EventCancelled, cancelled)
	logger.Info("予約をキャンセルしました",
		zap.String("booking_id", b.ID),
		zap.String("requester_id", input.RequesterID),
	)
	return cancelled, nil
}

// CancelByUnit はユニットを確保している予約をキャンセルする
func (s *LedgerService) CancelByUnit(ctx context.Context, unitID, requesterID string, isAdmin bool) (*booking.Booking, error) {
	u, err := s.unitSvc.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	d, err := booking.ParseDomain(u.Domain)
	if err != nil {
		return nil, err
	}
	if !d.Policy().Releasable {
		return nil, booking.ErrCancelNotSupported
	}
	if u.Status != unit.StatusBooked || u.BookingID == nil {
		return nil, booking.ErrBookingNotFound
	}
	return s.Cancel(ctx, CancelInput{BookingID: *u.BookingID, RequesterID: requesterID, IsAdmin: isAdmin})
}

type RecordInput struct {
	UserID      string
	Domain      booking.Domain
	TotalAmount int
	UnitIDs     []string
}

// Record は確定済みの予約と内容が一致するかを照合して返す
// 新しい予約は作らない
func (s *LedgerService) Record(ctx context.Context, input RecordInput) (*booking.Booking, error) {
	if !input.Domain.IsValid() {
		return nil, booking.ErrInvalidDomain
	}
	if err := booking.ValidateUnitIDs(input.Domain, input.UnitIDs); err != nil {
		return nil, err
	}

	u, err := s.unitSvc.GetUnit(ctx, input.UnitIDs[0])
	if err != nil {
		return nil, err
	}
	if u.BookingID == nil {
		return nil, booking.ErrBookingNotFound
	}
	b, err := s.bookings.GetByID(ctx, *u.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsOwnedBy(input.UserID) || b.Domain != input.Domain || b.Status != booking.StatusConfirmed || !b.SameUnits(input.UnitIDs) {
		return nil, booking.ErrBookingNotFound
	}
	if b.TotalAmount != input.TotalAmount {
		return nil, booking.ErrAmountMismatch
	}
	return b, nil
}

// ExpireStalePending は olderThan より古い PENDING 予約を EXPIRED にする
func (s *LedgerService) ExpireStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.clock.Now()
	stale, err := s.bookings.GetStalePending(ctx, now.Add(-olderThan), staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("処理中予約の取得に失敗: %w", err)
	}

	expired := 0
	for _, b := range stale {
		if _, err := s.expire(ctx, b, "確定処理が完了しませんでした"); err != nil {
			logger.Error("処理中予約の失効に失敗", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		expired++
	}
	s.metrics.AddStaleBookingsExpired(expired)
	return expired, nil
}

// expire は PENDING 予約を EXPIRED にする
func (s *LedgerService) expire(ctx context.Context, b *booking.Booking, reason string) (*booking.Booking, error) {
	expired := b.Clone()
	if err := expired.Expire(reason, s.clock.Now()); err != nil {
		return nil, err
	}
	err := transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		return s.bookings.UpdateStatus(ctx, tx, expired)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, booking.EventExpired, expired)
	return expired, nil
}

// abandon は決済に失敗した PENDING 予約を CANCELLED にする
func (s *LedgerService) abandon(ctx context.Context, b *booking.Booking, reason string) (*booking.Booking, error) {
	cancelled := b.Clone()
	if err := cancelled.Cancel(reason, s.clock.Now()); err != nil {
		return nil, err
	}
	err := transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		return s.bookings.UpdateStatus(ctx, tx, cancelled)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, booking.EventCancelled, cancelled)
	return cancelled, nil
}

func (s *LedgerService) publish(ctx context.Context, t booking.EventType, b *booking.Booking) {
	if s.publisher == nil {
		return
	}
	ev := booking.NewEvent(t, b, s.clock.Now())
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("予約イベントの配信に失敗",
			zap.String("event_type", string(t)),
			zap.String("booking_id", b.ID),
			zap.Error(err),
		)
	}
}
