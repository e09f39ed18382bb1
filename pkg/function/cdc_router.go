package function

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/storage/xcache"
)

// CdcRouter 把订单变更记录按 new_order_status 路由到
// <PULSAR_NAMESPACE>/<status>，status 转小写且 '_' 替换为 '-'。
// 消息 key 携带 new_order_id，value 为 old_* / new_* 字段的 JSON。
// 路由消息异步发送；同一变更同时作为 Output 返回给输出 topic。
type CdcRouter struct{}

func NewCdcRouter() *CdcRouter { return &CdcRouter{} }

// RouteTopic 返回变更应发往的 topic。
func RouteTopic(namespace, orderStatus string) string {
	return namespace + "/" + strings.ReplaceAll(strings.ToLower(orderStatus), "_", "-")
}

func (CdcRouter) Process(ctx context.Context, fctx *Context, rec Record) (*Output, error) {
	ns := fctx.Namespace()
	if ns == "" {
		return nil, ErrNoNamespace
	}

	change, err := decodeChangeRecord(rec)
	if err != nil {
		return nil, err
	}
	if change.NewOrderStatus == nil || *change.NewOrderStatus == "" {
		return nil, ErrMissingOrderStatus
	}
	topic := RouteTopic(ns, *change.NewOrderStatus)

	payload, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("function: encode change: %w", err)
	}
	logger := fctx.Logger()
	fctx.PublishAsync(ctx, topic, &pulsar.ProducerMessage{Key: rec.Key, Payload: payload}, func(_ pulsar.MessageID, err error) {
		if err != nil {
			logger.Error(ctx, "route change failed", xlog.Topic(topic), xlog.Err(err))
		}
	})
	return &Output{Key: rec.Key, Payload: payload}, nil
}

// decodeChangeRecord value 解码为 DeliveryChange，new_order_id 取自 key。
func decodeChangeRecord(rec Record) (*xcache.DeliveryChange, error) {
	var change xcache.DeliveryChange
	if err := json.Unmarshal(rec.Payload, &change); err != nil {
		return nil, fmt.Errorf("function: decode change record: %w", err)
	}
	id, err := parseOrderKey(rec.Key, "new_order_id")
	if err != nil {
		return nil, err
	}
	change.NewOrderID = &id
	return &change, nil
}

// parseOrderKey 支持 {"<field>": 123} 形式的 JSON key，也支持纯数字 key。
func parseOrderKey(key, field string) (int32, error) {
	key = strings.TrimSpace(key)
	if n, err := strconv.ParseInt(key, 10, 32); err == nil {
		return int32(n), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(key), &obj); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for k, raw := range obj {
		if !strings.EqualFold(k, field) {
			continue
		}
		var n int32
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidKey, field, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: no %s in %q", ErrInvalidKey, field, key)
}
