package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
)

// HoldReleaser は期限切れの保留を一括で解放する
type HoldReleaser interface {
	ReleaseLapsedHolds(ctx context.Context) (int64, error)
}

// PendingExpirer は確定に至らず残った処理中予約を失効させる
type PendingExpirer interface {
	ExpireStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// ExpiredHoldSweeper は期限切れの保留と放置された処理中予約を定期的に片付けるワーカー
type ExpiredHoldSweeper struct {
	holds          HoldReleaser
	pending        PendingExpirer
	interval       time.Duration
	pendingTimeout time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
	stopOnce       sync.Once
}

// NewExpiredHoldSweeper は新しいスイーパーを作成
func NewExpiredHoldSweeper(
	holds HoldReleaser,
	pending PendingExpirer,
	interval time.Duration,
	pendingTimeout time.Duration,
) *ExpiredHoldSweeper {
	return &ExpiredHoldSweeper{
		holds:          holds,
		pending:        pending,
		interval:       interval,
		pendingTimeout: pendingTimeout,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はスイーパーを開始し、停止するまでブロックする
func (s *ExpiredHoldSweeper) Start(ctx context.Context) {
	logger.Info("期限切れ保留スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("pending_timeout", s.pendingTimeout),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ保留スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("期限切れ保留スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止し、ループの終了を待つ
func (s *ExpiredHoldSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Sweep は1回分の片付けを行い、解放した保留数と失効させた予約数を返す
func (s *ExpiredHoldSweeper) Sweep(ctx context.Context) (int64, int) {
	log := logger.Get()
	log.Debug("期限切れ保留の解放開始")

	released, err := s.holds.ReleaseLapsedHolds(ctx)
	if err != nil {
		log.Error("期限切れ保留の解放失敗", zap.Error(err))
	} else if released > 0 {
		log.Info("期限切れ保留を解放", zap.Int64("count", released))
	}

	if s.pending == nil || s.pendingTimeout <= 0 {
		return released, 0
	}
	expired, err := s.pending.ExpireStalePending(ctx, s.pendingTimeout)
	if err != nil {
		log.Error("処理中予約の失効失敗", zap.Error(err))
		return released, 0
	}
	if expired > 0 {
		log.Info("放置された処理中予約を失効", zap.Int("count", expired))
	}
	return released, expired
}
