package function

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/resilience/xbreaker"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
	"github.com/omeyang/xworkshop/pkg/storage/xcache"
)

// DeliveryStatus 订单配送状态源记录，字段名与上游 CSV 列一致。
type DeliveryStatus struct {
	LateDeliveryRisk *bool   `json:"Late_delivery_risk"`
	OrderStatus      *string `json:"OrderStatus"`
	OrderID          *int32  `json:"OrderId"`
	CategoryID       *int32  `json:"CategoryId"`
	DeliveryStatus   *string `json:"Delivery_Status"`
	CustomerLname    *string `json:"CustomerLname"`
	CustomerCity     *string `json:"CustomerCity"`
	CustomerCountry  *string `json:"CustomerCountry"`
	CustomerFname    *string `json:"CustomerFname"`
	CustomerID       *int32  `json:"CustomerId"`
}

// Locker 按 key 加锁，xcache.Redis 满足该接口。
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (xcache.Unlocker, error)
}

// DefaultLockTTL 每个订单锁的最长持有时间。
const DefaultLockTTL = 10 * time.Second

// ChangeWriterOption ChangeWriter 选项。
type ChangeWriterOption func(*ChangeWriter)

// WithLocker 对同一订单的读改写加锁。
func WithLocker(l Locker) ChangeWriterOption {
	return func(w *ChangeWriter) { w.locker = l }
}

// WithLockTTL d <= 0 时忽略。
func WithLockTTL(d time.Duration) ChangeWriterOption {
	return func(w *ChangeWriter) {
		if d > 0 {
			w.lockTTL = d
		}
	}
}

// WithStoreExecutor 替换默认的熔断加重试执行器。
func WithStoreExecutor(br *xbreaker.BreakerRetryer) ChangeWriterOption {
	return func(w *ChangeWriter) {
		if br != nil {
			w.exec = br
		}
	}
}

// WithClock 测试用。
func WithClock(now func() time.Time) ChangeWriterOption {
	return func(w *ChangeWriter) {
		if now != nil {
			w.now = now
		}
	}
}

// ChangeWriter 把 DeliveryStatus 合并为变更行：
//   - 已有行且 new_updated_time <= 当前时间：旧的 new_* 移到 old_*，
//     再写入新值；空消息（墓碑）只保留订单号；
//   - 已有行的时间在未来：跳过，返回 nil Output；
//   - 没有行：直接写入新值。
//
// 读写经过熔断器与重试；配置了 Locker 时整个读改写在订单锁内完成。
type ChangeWriter struct {
	store   xcache.ChangeStore
	locker  Locker
	lockTTL time.Duration
	exec    *xbreaker.BreakerRetryer
	now     func() time.Time
}

// NewChangeWriter 创建写入器。
func NewChangeWriter(store xcache.ChangeStore, opts ...ChangeWriterOption) (*ChangeWriter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	w := &ChangeWriter{store: store, lockTTL: DefaultLockTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.exec == nil {
		exec, err := xbreaker.NewBreakerRetryer(
			xbreaker.NewBreaker("change-store"),
			xretry.NewRetryer(
				xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
				xretry.WithBackoffPolicy(xretry.NewFixedBackoff(50*time.Millisecond)),
			),
		)
		if err != nil {
			return nil, err
		}
		w.exec = exec
	}
	return w, nil
}

func (w *ChangeWriter) Process(ctx context.Context, fctx *Context, rec Record) (out *Output, err error) {
	orderID, err := parseOrderKey(rec.Key, "OrderId")
	if err != nil {
		return nil, err
	}
	var status *DeliveryStatus
	if len(bytes.TrimSpace(rec.Payload)) > 0 {
		status = &DeliveryStatus{}
		if err := json.Unmarshal(rec.Payload, status); err != nil {
			return nil, fmt.Errorf("function: decode delivery status: %w", err)
		}
	}

	if w.locker != nil {
		unlock, err := w.locker.Lock(ctx, xcache.ChangeKey(orderID), w.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
				fctx.Logger().Warn(ctx, "unlock order failed", xlog.Key(xcache.ChangeKey(orderID)), xlog.Err(uerr))
			}
		}()
	}

	change, err := w.merge(ctx, orderID, status)
	if err != nil || change == nil {
		if err == nil {
			fctx.Logger().Debug(ctx, "change skipped", xlog.Key(xcache.ChangeKey(orderID)))
		}
		return nil, err
	}
	if err := w.exec.Do(ctx, func(ctx context.Context) error {
		return w.store.Put(ctx, change)
	}); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("function: encode change: %w", err)
	}
	return &Output{Key: rec.Key, Payload: payload}, nil
}

// merge 返回待写入的变更，nil 表示无需写入。
func (w *ChangeWriter) merge(ctx context.Context, orderID int32, status *DeliveryStatus) (*xcache.DeliveryChange, error) {
	var (
		latest *xcache.DeliveryChange
		found  bool
	)
	err := w.exec.Do(ctx, func(ctx context.Context) error {
		var err error
		latest, found, err = w.store.Latest(ctx, orderID)
		if errors.Is(err, xcache.ErrCorrupted) {
			return xretry.NewPermanentError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	now := w.now().UnixMilli()
	change := &xcache.DeliveryChange{}
	if !found {
		if status == nil {
			// 从未写入过的订单被删除
			return nil, nil
		}
		setNewChanges(change, orderID, status, now)
		return change, nil
	}

	var last int64
	if latest.NewUpdatedTime != nil {
		last = *latest.NewUpdatedTime
	}
	if last > now {
		return nil, nil
	}
	moveOldChanges(change, latest, last)
	if status == nil {
		setTombstone(change, orderID, now)
	} else {
		setNewChanges(change, orderID, status, now)
	}
	return change, nil
}

func moveOldChanges(dst, stored *xcache.DeliveryChange, lastUpdated int64) {
	dst.OldUpdatedTime = &lastUpdated
	dst.OldCustomerID = stored.NewCustomerID
	dst.OldCategoryID = stored.NewCategoryID
	dst.OldCustomerCountry = stored.NewCustomerCountry
	dst.OldCustomerCity = stored.NewCustomerCity
	dst.OldCustomerFname = stored.NewCustomerFname
	dst.OldCustomerLname = stored.NewCustomerLname
	dst.OldDeliveryStatus = stored.NewDeliveryStatus
	dst.OldOrderStatus = stored.NewOrderStatus
	dst.OldOrderID = stored.NewOrderID
	dst.OldLateDeliveryRisk = stored.NewLateDeliveryRisk
}

func setTombstone(dst *xcache.DeliveryChange, orderID int32, now int64) {
	dst.NewOrderID = &orderID
	dst.NewUpdatedTime = &now
}

func setNewChanges(dst *xcache.DeliveryChange, orderID int32, s *DeliveryStatus, now int64) {
	dst.NewCustomerID = s.CustomerID
	dst.NewCategoryID = s.CategoryID
	dst.NewCustomerCountry = s.CustomerCountry
	dst.NewCustomerCity = s.CustomerCity
	dst.NewCustomerFname = s.CustomerFname
	dst.NewCustomerLname = s.CustomerLname
	dst.NewOrderStatus = s.OrderStatus
	dst.NewDeliveryStatus = s.DeliveryStatus
	dst.NewLateDeliveryRisk = s.LateDeliveryRisk
	dst.NewOrderID = &orderID
	dst.NewUpdatedTime = &now
}
