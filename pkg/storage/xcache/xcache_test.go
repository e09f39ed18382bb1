package xcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return mr, r
}

func sampleChange(orderID int32) *DeliveryChange {
	return &DeliveryChange{
		NewOrderID:        ptr(orderID),
		NewOrderStatus:    ptr("PENDING_PAYMENT"),
		NewDeliveryStatus: ptr("Advance shipping"),
		NewCustomerID:     ptr(int32(42)),
		NewUpdatedTime:    ptr(int64(1700000000000)),
	}
}

func TestChangeKey(t *testing.T) {
	assert.Equal(t, "changes_by_order_id:77", ChangeKey(77))
	assert.Equal(t, "changes_by_order_id:-1", ChangeKey(-1))
}

func TestRedisChangeStore(t *testing.T) {
	mr, r := newMiniRedis(t)
	store, err := NewRedisChangeStore(r)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("不存在", func(t *testing.T) {
		_, found, err := store.Latest(ctx, 1)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("写入后读取", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, sampleChange(7)))
		raw, err := mr.Get("changes_by_order_id:7")
		require.NoError(t, err)
		assert.Contains(t, raw, `"new_order_status":"PENDING_PAYMENT"`)
		assert.Contains(t, raw, `"old_order_id":null`)

		got, found, err := store.Latest(ctx, 7)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, sampleChange(7), got)
	})

	t.Run("损坏的值", func(t *testing.T) {
		require.NoError(t, mr.Set(ChangeKey(9), "{not json"))
		_, _, err := store.Latest(ctx, 9)
		assert.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("缺少订单号", func(t *testing.T) {
		assert.ErrorIs(t, store.Put(ctx, &DeliveryChange{}), ErrMissingOrderID)
		assert.ErrorIs(t, store.Put(ctx, nil), ErrNilChange)
	})

	t.Run("Redis 不可用", func(t *testing.T) {
		mr.SetError("boom")
		defer mr.SetError("")
		_, _, err := store.Latest(ctx, 7)
		assert.Error(t, err)
	})

	_, err = NewRedisChangeStore(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestRedisLock(t *testing.T) {
	mr, r := newMiniRedis(t)
	ctx := context.Background()

	unlock, err := r.Lock(ctx, "order:7", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:order:7"))

	_, err = r.Lock(ctx, "order:7", time.Second)
	assert.ErrorIs(t, err, ErrLockFailed)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("lock:order:7"))
	assert.ErrorIs(t, unlock(ctx), ErrLockExpired)

	t.Run("参数校验", func(t *testing.T) {
		_, err := r.Lock(ctx, "", time.Second)
		assert.ErrorIs(t, err, ErrEmptyKey)
		_, err = r.Lock(ctx, "k", 0)
		assert.ErrorIs(t, err, ErrInvalidLockTTL)
	})

	t.Run("重试等到过期", func(t *testing.T) {
		r2, err := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}),
			WithLockKeyPrefix("l:"), WithLockRetry(10*time.Millisecond, 5))
		require.NoError(t, err)
		defer func() { _ = r2.Close() }()

		_, err = r2.Lock(ctx, "x", time.Second)
		require.NoError(t, err)

		go func() {
			time.Sleep(15 * time.Millisecond)
			mr.Del("l:x")
		}()
		unlock, err := r2.Lock(ctx, "x", time.Second)
		require.NoError(t, err)
		assert.NoError(t, unlock(ctx))
	})

	t.Run("关闭后", func(t *testing.T) {
		r3, err := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		require.NoError(t, err)
		require.NoError(t, r3.Close())
		assert.ErrorIs(t, r3.Close(), ErrClosed)
		_, err = r3.Lock(ctx, "k", time.Second)
		assert.ErrorIs(t, err, ErrClosed)
	})

	_, err = NewRedis(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestMemoryChangeStore(t *testing.T) {
	store, err := NewMemoryChangeStore(WithMemoryMaxCost(1), WithMemoryNumCounters(1000))
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := store.Latest(ctx, 3)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, sampleChange(3)))
	got, found, err := store.Latest(ctx, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "PENDING_PAYMENT", *got.NewOrderStatus)

	updated := sampleChange(3)
	updated.NewOrderStatus = ptr("COMPLETE")
	require.NoError(t, store.Put(ctx, updated))
	got, _, err = store.Latest(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", *got.NewOrderStatus)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Close(), ErrClosed)
	assert.ErrorIs(t, store.Put(ctx, sampleChange(3)), ErrClosed)
	_, _, err = store.Latest(ctx, 3)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDeliveryChange_OrderID(t *testing.T) {
	var nilChange *DeliveryChange
	_, ok := nilChange.OrderID()
	assert.False(t, ok)

	id, ok := sampleChange(5).OrderID()
	assert.True(t, ok)
	assert.Equal(t, int32(5), id)
}
