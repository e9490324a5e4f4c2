package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-reservation-engine/internal/config"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
	"github.com/sanosuguru/go-reservation-engine/internal/pkg/metrics"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client, err := NewClient(&config.RedisConfig{Host: "localhost", Port: "6379"})
	if err != nil {
		t.Skip("Redis not available")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConfirmGuardKey(t *testing.T) {
	a := ConfirmGuardKey("user-1", []string{"A2", "A1"})
	b := ConfirmGuardKey("user-1", []string{"A1", "A2"})

	assert.Equal(t, a, b)
	assert.Equal(t, "confirm:user-1:A1,A2", a)
	assert.NotEqual(t, a, ConfirmGuardKey("user-2", []string{"A1", "A2"}))
}

func TestErrLockNotAcquired_IsConflict(t *testing.T) {
	assert.True(t, errs.Is(ErrLockNotAcquired, errs.ErrConflict))
}

func TestLockManager_AcquireLock(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	manager := NewLockManager(client, nil)

	t.Run("ロックを取得できる", func(t *testing.T) {
		lock, err := manager.AcquireLock(ctx, "test-key-1", 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, lock)
		defer lock.Release(ctx)
	})

	t.Run("同じキーのロックは取得できない", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "test-key-2", 5*time.Second)
		require.NoError(t, err)
		defer lock1.Release(ctx)

		lock2, err := manager.AcquireLock(ctx, "test-key-2", 5*time.Second)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		assert.Nil(t, lock2)
	})

	t.Run("解放後は再取得できる", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "test-key-3", 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, lock1.Release(ctx))

		lock2, err := manager.AcquireLock(ctx, "test-key-3", 5*time.Second)
		require.NoError(t, err)
		defer lock2.Release(ctx)
	})

	t.Run("ロックを延長できる", func(t *testing.T) {
		lock, err := manager.AcquireLock(ctx, "test-key-extend", 1*time.Second)
		require.NoError(t, err)
		defer lock.Release(ctx)

		require.NoError(t, lock.Extend(ctx, 5*time.Second))

		lock2, err := manager.AcquireLock(ctx, "test-key-extend", 1*time.Second)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		assert.Nil(t, lock2)
	})

	t.Run("解放後は延長できない", func(t *testing.T) {
		lock, err := manager.AcquireLock(ctx, "test-key-extend-after-release", 1*time.Second)
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))

		err = lock.Extend(ctx, 5*time.Second)
		assert.ErrorIs(t, err, ErrLockNotOwned)
	})
}

func TestLockManager_Guard(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	manager := NewLockManager(client, m)

	release, err := manager.Guard(ctx, "guard-user", []string{"A1", "A2"}, 5*time.Second)
	require.NoError(t, err)

	// 順序が違っても同じ確定処理とみなす
	_, err = manager.Guard(ctx, "guard-user", []string{"A2", "A1"}, 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, release(ctx))

	release, err = manager.Guard(ctx, "guard-user", []string{"A1", "A2"}, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, release(ctx))

	assert.Equal(t, 3, testutil.CollectAndCount(m.DistributedLockDuration))
}

func TestLockManager_Guard_KeepAlive(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	manager := NewLockManager(client, m)

	release, err := manager.Guard(ctx, "slow-user", []string{"B1"}, 400*time.Millisecond)
	require.NoError(t, err)

	// 決済が ttl を超えても確定処理中は同じ要求を受け付けない
	time.Sleep(1 * time.Second)
	_, err = manager.Guard(ctx, "slow-user", []string{"B1"}, 400*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, release(ctx))
	assert.Equal(t, int64(0), client.Exists(ctx, "lock:"+ConfirmGuardKey("slow-user", []string{"B1"})).Val())

	// acquire(success, failed), extend(success), release(success)
	assert.Equal(t, 4, testutil.CollectAndCount(m.DistributedLockDuration))
}
