package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/unit"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

const maxProvisionCount = 1000

// UnitService はユニットの読み取りと期限切れ保留の調整を行う
// 読み取りは必ず期限切れの保留を解放してから返す
type UnitService struct {
	units    unit.Repository
	cache    AvailabilityCache
	clock    clock.Clock
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

func NewUnitService(units unit.Repository, cache AvailabilityCache, clk clock.Clock, cacheTTL time.Duration, m *metrics.Metrics) *UnitService {
	return &UnitService{units: units, cache: cache, clock: clk, cacheTTL: cacheTTL, metrics: m}
}

// ListUnits はリソースのユニット一覧を返す
func (s *UnitService) ListUnits(ctx context.Context, resourceID string) ([]*unit.Unit, error) {
	if resourceID == "" {
		return nil, unit.ErrResourceIDRequired
	}
	if _, err := s.reconcileResource(ctx, resourceID); err != nil {
		return nil, err
	}
	units, err := s.units.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("ユニット一覧取得に失敗: %w", err)
	}
	if len(units) == 0 {
		return nil, unit.ErrResourceNotFound
	}
	return s.settle(ctx, units)
}

// GetUnit はユニットを1件返す
func (s *UnitService) GetUnit(ctx context.Context, id string) (*unit.Unit, error) {
	if err := s.reconcileIDs(ctx, []string{id}, s.clock.Now()); err != nil {
		return nil, err
	}
	u, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	settled, err := s.settle(ctx, []*unit.Unit{u})
	if err != nil {
		return nil, err
	}
	return settled[0], nil
}

// settle は読み取りの間に期限切れとなった保留を解放し、該当ユニットを読み直す
func (s *UnitService) settle(ctx context.Context, units []*unit.Unit) ([]*unit.Unit, error) {
	now := s.clock.Now()
	var lapsed []string
	for _, u := range units {
		if u.IsHoldLapsed(now) {
			lapsed = append(lapsed, u.ID)
		}
	}
	if len(lapsed) == 0 {
		return units, nil
	}

	if err := s.reconcileIDs(ctx, lapsed, now); err != nil {
		return nil, err
	}
	s.InvalidateCache(ctx, units[0].ResourceID)
	fresh, err := s.units.GetByIDs(ctx, lapsed)
	if err != nil {
		return nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	byID := make(map[string]*unit.Unit, len(fresh))
	for _, u := range fresh {
		byID[u.ID] = u
	}
	for i, u := range units {
		if f, ok := byID[u.ID]; ok {
			units[i] = f
		}
	}
	return units, nil
}

type ProvisionInput struct {
	Domain     booking.Domain
	ResourceID string
	Prefix     string
	Count      int
	Labels     []string
}

// ProvisionUnits はリソースにユニットを作成する。Labels があればそれを優先する
func (s *UnitService) ProvisionUnits(ctx context.Context, input ProvisionInput) ([]*unit.Unit, error) {
	if !input.Domain.IsValid() {
		return nil, booking.ErrInvalidDomain
	}
	labels := input.Labels
	if len(labels) == 0 {
		if input.Count <= 0 || input.Prefix == "" {
			return nil, unit.ErrInvalidCapacity
		}
		labels = make([]string, input.Count)
		for i := range labels {
			labels[i] = fmt.Sprintf("%s%d", input.Prefix, i+1)
		}
	}
	if len(labels) > maxProvisionCount {
		return nil, unit.ErrInvalidCapacity
	}

	now := s.clock.Now()
	seen := make(map[string]struct{}, len(labels))
	units := make([]*unit.Unit, 0, len(labels))
	for _, label := range labels {
		if _, dup := seen[label]; dup {
			return nil, unit.ErrInvalidCapacity
		}
		seen[label] = struct{}{}
		u := unit.NewUnit(string(input.Domain), input.ResourceID, label, now)
		if err := u.Validate(); err != nil {
			return nil, err
		}
		units = append(units, u)
	}

	if err := s.units.CreateBulk(ctx, units); err != nil {
		return nil, err
	}
	s.InvalidateCache(ctx, input.ResourceID)
	logger.Info("ユニットを作成しました",
		zap.String("domain", string(input.Domain)),
		zap.String("resource_id", input.ResourceID),
		zap.Int("count", len(units)),
	)
	return units, nil
}

// CountAvailable は空きユニット数を返す
// キャッシュの寿命は次に保留が切れる時刻を超えない
func (s *UnitService) CountAvailable(ctx context.Context, resourceID string) (int, error) {
	if s.cache != nil {
		count, err := s.cache.GetAvailableCount(ctx, resourceID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("resource_id", resourceID), zap.Int("count", count))
			return count, nil
		}
		if !s.cache.IsMiss(err) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	now := s.clock.Now()
	count, nextExpiry, err := s.units.CountAvailable(ctx, resourceID, now)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		ttl := s.cacheTTL
		if nextExpiry != nil {
			if untilExpiry := nextExpiry.Sub(now); untilExpiry < ttl {
				ttl = untilExpiry
			}
		}
		if cacheErr := s.cache.SetAvailableCount(ctx, resourceID, count, ttl); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return count, nil
}

// ReleaseLapsedHolds は全リソースの期限切れ保留を解放する
func (s *UnitService) ReleaseLapsedHolds(ctx context.Context) (int64, error) {
	n, err := s.units.ReleaseLapsed(ctx, "", s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("期限切れ保留の解放に失敗: %w", err)
	}
	s.metrics.AddHoldsReleased(int(n))
	return n, nil
}

// InvalidateCache はリソースの空き数キャッシュを無効化する
func (s *UnitService) InvalidateCache(ctx context.Context, resourceIDs ...string) {
	if s.cache == nil || len(resourceIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, resourceIDs...); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.Strings("resource_ids", resourceIDs), zap.Error(err))
	}
}

func (s *UnitService) reconcileResource(ctx context.Context, resourceID string) (int64, error) {
	n, err := s.units.ReleaseLapsed(ctx, resourceID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("期限切れ保留の解放に失敗: %w", err)
	}
	if n > 0 {
		s.metrics.AddHoldsReleased(int(n))
		s.InvalidateCache(ctx, resourceID)
	}
	return n, nil
}

func (s *UnitService) reconcileIDs(ctx context.Context, ids []string, now time.Time) error {
	n, err := s.units.ReleaseLapsedByIDs(ctx, ids, now)
	if err != nil {
		return fmt.Errorf("期限切れ保留の解放に失敗: %w", err)
	}
	s.metrics.AddHoldsReleased(int(n))
	return nil
}
