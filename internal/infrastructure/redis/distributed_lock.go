package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

var (
	ErrLockNotAcquired = errs.Mark(errs.New("同じ確定処理が進行中です"), errs.ErrConflict)
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

// 所有者確認と削除をアトミックに実行する
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// DistributedLock は Redis を使用した分散ロック
type DistributedLock struct {
	client  *redis.Client
	key     string
	value   string
	ttl     time.Duration
	metrics *metrics.Metrics
}

// LockManager は分散ロックを管理する
// 予約確定の二重送信をまとめるためのもので、ユニットの排他はDBのCASが担う
type LockManager struct {
	client  *redis.Client
	metrics *metrics.Metrics
}

func NewLockManager(client *redis.Client, m *metrics.Metrics) *LockManager {
	return &LockManager{client: client, metrics: m}
}

// AcquireLock はロックを取得する
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	start := time.Now()
	lockKey := fmt.Sprintf("lock:%s", key)
	lockValue := uuid.New().String()

	// SetNX を使用してロックを取得（キーが存在しない場合のみ設定）
	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		m.metrics.ObserveLock("acquire", "error", time.Since(start))
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		m.metrics.ObserveLock("acquire", "failed", time.Since(start))
		return nil, ErrLockNotAcquired
	}
	m.metrics.ObserveLock("acquire", "success", time.Since(start))

	return &DistributedLock{
		client:  m.client,
		key:     lockKey,
		value:   lockValue,
		ttl:     ttl,
		metrics: m.metrics,
	}, nil
}

// Guard は利用者とユニット集合ごとの確定処理ロックを取得し、解放関数を返す
// 決済が ttl を超えても解放されるまでロックは ttl/2 ごとに延長される
func (m *LockManager) Guard(ctx context.Context, requesterID string, unitIDs []string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := m.AcquireLock(ctx, ConfirmGuardKey(requesterID, unitIDs), ttl)
	if err != nil {
		return nil, err
	}
	stop := lock.keepAlive(context.WithoutCancel(ctx), ttl/2)
	return func(ctx context.Context) error {
		stop()
		return lock.Release(ctx)
	}, nil
}

// ConfirmGuardKey はユニットIDの順序に依存しないキーを返す
func ConfirmGuardKey(requesterID string, unitIDs []string) string {
	ids := append([]string(nil), unitIDs...)
	sort.Strings(ids)
	return "confirm:" + requesterID + ":" + strings.Join(ids, ",")
}

// Release はロックを解放する（Lua スクリプトで安全に解放）
func (l *DistributedLock) Release(ctx context.Context) error {
	start := time.Now()
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		l.metrics.ObserveLock("release", "error", time.Since(start))
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		l.metrics.ObserveLock("release", "failed", time.Since(start))
		return ErrLockNotOwned
	}
	l.metrics.ObserveLock("release", "success", time.Since(start))
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	start := time.Now()
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int()
	if err != nil {
		l.metrics.ObserveLock("extend", "error", time.Since(start))
		return fmt.Errorf("ロック延長に失敗: %w", err)
	}
	if result == 0 {
		l.metrics.ObserveLock("extend", "failed", time.Since(start))
		return ErrLockNotOwned
	}
	l.metrics.ObserveLock("extend", "success", time.Since(start))
	l.ttl = ttl
	return nil
}

// keepAlive は stop が呼ばれるまで interval ごとにロックを延長する
func (l *DistributedLock) keepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, l.ttl); err != nil {
					if ctx.Err() == nil {
						logger.Warn("確定ガードの延長に失敗", zap.String("key", l.key), zap.Error(err))
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
