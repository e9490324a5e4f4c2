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

// LockService はユニット単位の保留と解放を扱う
type LockService struct {
	units   unit.Repository
	unitSvc *UnitService
	clock   clock.Clock
	holdTTL time.Duration
	metrics *metrics.Metrics
}

func NewLockService(units unit.Repository, unitSvc *UnitService, clk clock.Clock, holdTTL time.Duration, m *metrics.Metrics) *LockService {
	if holdTTL <= 0 {
		holdTTL = booking.DefaultHoldTTL
	}
	return &LockService{units: units, unitSvc: unitSvc, clock: clk, holdTTL: holdTTL, metrics: m}
}

type LockInput struct {
	Domain  booking.Domain
	UnitID  string
	OwnerID string
}

// LockUnit はユニットを保留する
// 保留中のユニットは本人のものでも ErrUnitNotAvailable を返す
func (s *LockService) LockUnit(ctx context.Context, input LockInput) (*unit.Hold, error) {
	if !input.Domain.IsValid() {
		return nil, booking.ErrInvalidDomain
	}
	if input.OwnerID == "" {
		return nil, unit.ErrOwnerRequired
	}

	u, err := s.unitSvc.GetUnit(ctx, input.UnitID)
	if err != nil {
		return nil, err
	}
	if u.Domain != string(input.Domain) {
		return nil, unit.ErrUnitNotFound
	}

	now := s.clock.Now()
	if !u.IsAvailable(now) {
		s.metrics.RecordHoldAttempt(u.Domain, "conflict")
		return nil, unit.ErrUnitNotAvailable
	}

	expiresAt := now.Add(s.holdTTL)
	ok, err := s.units.CompareAndLock(ctx, u.ID, u.Version, input.OwnerID, now, expiresAt)
	if err != nil {
		s.metrics.RecordHoldAttempt(u.Domain, "error")
		return nil, fmt.Errorf("ユニットの保留に失敗: %w", err)
	}
	if !ok {
		s.metrics.RecordHoldAttempt(u.Domain, "conflict")
		return nil, unit.ErrUnitNotAvailable
	}
	s.metrics.RecordHoldAttempt(u.Domain, "acquired")
	s.unitSvc.InvalidateCache(ctx, u.ResourceID)

	logger.Debug("ユニットを保留しました",
		zap.String("unit_id", u.ID),
		zap.String("owner_id", input.OwnerID),
		zap.Time("expires_at", expiresAt),
	)
	return &unit.Hold{
		UnitID:     u.ID,
		ResourceID: u.ResourceID,
		OwnerID:    input.OwnerID,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
		TTL:        s.holdTTL,
	}, nil
}

// ReleaseUnit は保留者本人の保留を即時に解放する。利用可能なユニットなら何もしない
func (s *LockService) ReleaseUnit(ctx context.Context, unitID, ownerID string) error {
	if ownerID == "" {
		return unit.ErrOwnerRequired
	}
	u, err := s.unitSvc.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	switch u.Status {
	case unit.StatusAvailable:
		return nil
	case unit.StatusBooked:
		return unit.ErrUnitAlreadyBooked
	}
	if u.LockOwner == nil || *u.LockOwner != ownerID {
		return unit.ErrHoldNotOwned
	}

	ok, err := s.units.CompareAndRelease(ctx, unitID, ownerID, now)
	if err != nil {
		return fmt.Errorf("保留の解放に失敗: %w", err)
	}
	if !ok {
		// 直前に期限切れ解放や確定が入った場合
		latest, err := s.units.GetByID(ctx, unitID)
		if err != nil {
			return err
		}
		if latest.Status == unit.StatusBooked {
			return unit.ErrUnitAlreadyBooked
		}
		if latest.Status == unit.StatusLocked {
			return unit.ErrHoldNotOwned
		}
	}
	s.unitSvc.InvalidateCache(ctx, u.ResourceID)
	return nil
}

// ReleaseBookedUnits は予約で確保したユニットを tx 内で利用可能に戻す
func (s *LockService) ReleaseBookedUnits(ctx context.Context, tx transaction.Tx, bookingID string, unitIDs []string) error {
	now := s.clock.Now()
	for _, id := range unitIDs {
		ok, err := s.units.ReleaseBooked(ctx, tx, id, bookingID, now)
		if err != nil {
			return fmt.Errorf("ユニット %s の解放に失敗: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("ユニット %s: %w", id, unit.ErrUnitNotBooked)
		}
	}
	return nil
}
