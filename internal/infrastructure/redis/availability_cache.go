package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("キャッシュが見つかりません")

// AvailabilityCache はリソースごとの空きユニット数をキャッシュする
type AvailabilityCache struct {
	client *redis.Client
}

func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// GetAvailableCount は空きユニット数をキャッシュから取得する
func (c *AvailabilityCache) GetAvailableCount(ctx context.Context, resourceID string) (int, error) {
	val, err := c.client.Get(ctx, availableCountKey(resourceID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableCount は空きユニット数を保存する。ttl が0以下なら保存しない
func (c *AvailabilityCache) SetAvailableCount(ctx context.Context, resourceID string, count int, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, availableCountKey(resourceID), count, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はリソースのキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, resourceIDs ...string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	keys := make([]string, len(resourceIDs))
	for i, id := range resourceIDs {
		keys[i] = availableCountKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

// IsMiss はキャッシュミスかどうかを返す
func (c *AvailabilityCache) IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func availableCountKey(resourceID string) string {
	return fmt.Sprintf("units:available:%s", resourceID)
}
