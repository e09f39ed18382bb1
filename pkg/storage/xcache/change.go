package xcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// DeliveryChange 一次订单配送状态变更的前后镜像。
// 字段可为空：old_* 为空表示首次写入，new_*（订单号除外）为空表示订单已删除。
type DeliveryChange struct {
	OldCustomerID       *int32  `json:"old_customer_id"`
	OldOrderStatus      *string `json:"old_order_status"`
	OldDeliveryStatus   *string `json:"old_delivery_status"`
	OldCustomerLname    *string `json:"old_customer_lname"`
	OldCustomerCity     *string `json:"old_customer_city"`
	OldCustomerCountry  *string `json:"old_customer_country"`
	OldCustomerFname    *string `json:"old_customer_fname"`
	OldOrderID          *int32  `json:"old_order_id"`
	OldCategoryID       *int32  `json:"old_category_id"`
	OldUpdatedTime      *int64  `json:"old_updated_time"`
	OldLateDeliveryRisk *bool   `json:"old_late_delivery_risk"`

	NewCustomerID       *int32  `json:"new_customer_id"`
	NewOrderStatus      *string `json:"new_order_status"`
	NewDeliveryStatus   *string `json:"new_delivery_status"`
	NewCustomerLname    *string `json:"new_customer_lname"`
	NewCustomerCity     *string `json:"new_customer_city"`
	NewCustomerCountry  *string `json:"new_customer_country"`
	NewCustomerFname    *string `json:"new_customer_fname"`
	NewOrderID          *int32  `json:"new_order_id"`
	NewCategoryID       *int32  `json:"new_category_id"`
	NewUpdatedTime      *int64  `json:"new_updated_time"`
	NewLateDeliveryRisk *bool   `json:"new_late_delivery_risk"`
}

// OrderID 返回 new_order_id，缺失时 ok 为 false。
func (c *DeliveryChange) OrderID() (int32, bool) {
	if c == nil || c.NewOrderID == nil {
		return 0, false
	}
	return *c.NewOrderID, true
}

// ChangeStore 按订单号保存最新的变更行。
//
//go:generate mockgen -source=change.go -destination=mock_change_store.go -package=xcache
type ChangeStore interface {
	// Latest 返回订单的最新变更，不存在时 found 为 false。
	Latest(ctx context.Context, orderID int32) (change *DeliveryChange, found bool, err error)
	// Put 以 new_order_id 为键覆盖写入。
	Put(ctx context.Context, change *DeliveryChange) error
}

// ChangeKeyPrefix 变更行的 key 前缀。
const ChangeKeyPrefix = "changes_by_order_id:"

// ChangeKey 返回订单对应的存储 key。
func ChangeKey(orderID int32) string {
	return ChangeKeyPrefix + strconv.FormatInt(int64(orderID), 10)
}

func encodeChange(c *DeliveryChange) (string, []byte, error) {
	if c == nil {
		return "", nil, ErrNilChange
	}
	id, ok := c.OrderID()
	if !ok {
		return "", nil, ErrMissingOrderID
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", nil, fmt.Errorf("xcache: encode change: %w", err)
	}
	return ChangeKey(id), data, nil
}

func decodeChange(data []byte) (*DeliveryChange, error) {
	var c DeliveryChange
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return &c, nil
}
