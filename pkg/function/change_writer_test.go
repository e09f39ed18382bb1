package function

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xworkshop/pkg/resilience/xbreaker"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
	"github.com/omeyang/xworkshop/pkg/storage/xcache"
)

func ptr[T any](v T) *T { return &v }

var fixedNow = time.UnixMilli(1_700_000_100_000)

const statusPayload = `{
	"Late_delivery_risk": true, "OrderStatus": "PROCESSING", "OrderId": 9, "CategoryId": 17,
	"Delivery_Status": "Shipping on time", "CustomerLname": "Lee", "CustomerCity": "Tokyo",
	"CustomerCountry": "Japan", "CustomerFname": "Ann", "CustomerId": 300
}`

func fastExecutor(t *testing.T) *xbreaker.BreakerRetryer {
	t.Helper()
	br, err := xbreaker.NewBreakerRetryer(
		xbreaker.NewBreaker("test-store"),
		xretry.NewRetryer(
			xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
			xretry.WithBackoffPolicy(xretry.NewFixedBackoff(time.Millisecond)),
		),
	)
	require.NoError(t, err)
	return br
}

func newWriter(t *testing.T, store xcache.ChangeStore, opts ...ChangeWriterOption) (*ChangeWriter, *Context) {
	t.Helper()
	c, _ := newClient(t)
	fctx, err := NewContext(c, Config{Name: "change-writer"})
	require.NoError(t, err)
	t.Cleanup(fctx.Close)
	opts = append([]ChangeWriterOption{WithClock(func() time.Time { return fixedNow }), WithStoreExecutor(fastExecutor(t))}, opts...)
	w, err := NewChangeWriter(store, opts...)
	require.NoError(t, err)
	return w, fctx
}

func storedRow(updated int64) *xcache.DeliveryChange {
	return &xcache.DeliveryChange{
		NewCustomerID:       ptr(int32(300)),
		NewOrderStatus:      ptr("PENDING"),
		NewDeliveryStatus:   ptr("Advance shipping"),
		NewCustomerFname:    ptr("Ann"),
		NewOrderID:          ptr(int32(9)),
		NewCategoryID:       ptr(int32(17)),
		NewUpdatedTime:      ptr(updated),
		NewLateDeliveryRisk: ptr(false),
	}
}

func TestNewChangeWriter_NilStore(t *testing.T) {
	_, err := NewChangeWriter(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestChangeWriter_Process(t *testing.T) {
	ctx := context.Background()
	now := fixedNow.UnixMilli()

	t.Run("新订单直接写入", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(nil, false, nil)
		var put *xcache.DeliveryChange
		store.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *xcache.DeliveryChange) error {
			put = c
			return nil
		})

		w, fctx := newWriter(t, store)
		out, err := w.Process(ctx, fctx, Record{Key: `{"OrderId": 9}`, Payload: []byte(statusPayload)})
		require.NoError(t, err)
		require.NotNil(t, out)
		require.NotNil(t, put)

		assert.Equal(t, int32(9), *put.NewOrderID)
		assert.Equal(t, "PROCESSING", *put.NewOrderStatus)
		assert.Equal(t, "Shipping on time", *put.NewDeliveryStatus)
		assert.Equal(t, int32(300), *put.NewCustomerID)
		assert.Equal(t, now, *put.NewUpdatedTime)
		assert.Nil(t, put.OldOrderID)
		assert.Nil(t, put.OldUpdatedTime)

		var decoded xcache.DeliveryChange
		require.NoError(t, json.Unmarshal(out.Payload, &decoded))
		assert.Equal(t, "Tokyo", *decoded.NewCustomerCity)
	})

	t.Run("已有旧行时移入 old 字段", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(storedRow(now-1000), true, nil)
		var put *xcache.DeliveryChange
		store.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *xcache.DeliveryChange) error {
			put = c
			return nil
		})

		w, fctx := newWriter(t, store)
		_, err := w.Process(ctx, fctx, Record{Key: "9", Payload: []byte(statusPayload)})
		require.NoError(t, err)
		require.NotNil(t, put)

		assert.Equal(t, now-1000, *put.OldUpdatedTime)
		assert.Equal(t, "PENDING", *put.OldOrderStatus)
		assert.Equal(t, "Advance shipping", *put.OldDeliveryStatus)
		assert.Equal(t, int32(9), *put.OldOrderID)
		assert.False(t, *put.OldLateDeliveryRisk)
		assert.Equal(t, "PROCESSING", *put.NewOrderStatus)
		assert.True(t, *put.NewLateDeliveryRisk)
	})

	t.Run("墓碑只保留订单号", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(storedRow(now), true, nil)
		var put *xcache.DeliveryChange
		store.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *xcache.DeliveryChange) error {
			put = c
			return nil
		})

		w, fctx := newWriter(t, store)
		out, err := w.Process(ctx, fctx, Record{Key: "9"})
		require.NoError(t, err)
		require.NotNil(t, out)
		require.NotNil(t, put)

		assert.Equal(t, int32(9), *put.NewOrderID)
		assert.Equal(t, now, *put.NewUpdatedTime)
		assert.Nil(t, put.NewOrderStatus)
		assert.Nil(t, put.NewCustomerID)
		assert.Equal(t, "PENDING", *put.OldOrderStatus)
	})

	t.Run("存储中的时间在未来时跳过", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(storedRow(now+1), true, nil)

		w, fctx := newWriter(t, store)
		out, err := w.Process(ctx, fctx, Record{Key: "9", Payload: []byte(statusPayload)})
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("不存在的订单被删除时跳过", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(nil, false, nil)

		w, fctx := newWriter(t, store)
		out, err := w.Process(ctx, fctx, Record{Key: "9", Payload: []byte("  ")})
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("读取失败重试后返回错误", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		boom := errors.New("connection refused")
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(nil, false, boom).Times(3)

		w, fctx := newWriter(t, store)
		_, err := w.Process(ctx, fctx, Record{Key: "9", Payload: []byte(statusPayload)})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("损坏的行不重试", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(nil, false, xcache.ErrCorrupted).Times(1)

		w, fctx := newWriter(t, store)
		_, err := w.Process(ctx, fctx, Record{Key: "9", Payload: []byte(statusPayload)})
		assert.ErrorIs(t, err, xcache.ErrCorrupted)
	})

	t.Run("写入失败", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		store.EXPECT().Latest(gomock.Any(), int32(9)).Return(nil, false, nil)
		store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("timeout")).Times(3)

		w, fctx := newWriter(t, store)
		_, err := w.Process(ctx, fctx, Record{Key: "9", Payload: []byte(statusPayload)})
		assert.Error(t, err)
	})

	t.Run("非法输入", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := xcache.NewMockChangeStore(ctrl)
		w, fctx := newWriter(t, store)

		_, err := w.Process(ctx, fctx, Record{Key: "x", Payload: []byte(statusPayload)})
		assert.ErrorIs(t, err, ErrInvalidKey)
		_, err = w.Process(ctx, fctx, Record{Key: "9", Payload: []byte("{")})
		assert.Error(t, err)
	})
}

func TestChangeWriter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := xcache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	store, err := xcache.NewRedisChangeStore(r)
	require.NoError(t, err)

	w, fctx := newWriter(t, store, WithLocker(r), WithLockTTL(time.Second))
	ctx := context.Background()

	_, err = w.Process(ctx, fctx, Record{Key: `{"OrderId": 9}`, Payload: []byte(statusPayload)})
	require.NoError(t, err)
	_, err = w.Process(ctx, fctx, Record{Key: `{"OrderId": 9}`})
	require.NoError(t, err)

	got, found, err := store.Latest(ctx, 9)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "PROCESSING", *got.OldOrderStatus)
	assert.Nil(t, got.NewOrderStatus)
	assert.Equal(t, int32(9), *got.NewOrderID)

	// 锁已释放
	assert.False(t, mr.Exists("lock:"+xcache.ChangeKey(9)))
}
