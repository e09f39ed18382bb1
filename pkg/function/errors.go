package function

import (
	"errors"

	"github.com/omeyang/xworkshop/internal/mqcore"
)

var (
	ErrNilClient  = mqcore.ErrNilClient
	ErrNilHandler = mqcore.ErrNilHandler
)

var (
	// ErrNilFunction 未指定处理函数。
	ErrNilFunction = errors.New("function: nil function")

	// ErrNoInputs 没有输入 topic。
	ErrNoInputs = errors.New("function: no input topics")

	// ErrNoNamespace 用户配置缺少 PULSAR_NAMESPACE。
	ErrNoNamespace = errors.New("function: PULSAR_NAMESPACE not configured")

	// ErrMissingOrderStatus 变更记录缺少 new_order_status。
	ErrMissingOrderStatus = errors.New("function: change record has no new_order_status")

	// ErrInvalidKey 消息 key 中没有可识别的订单号。
	ErrInvalidKey = errors.New("function: invalid order key")

	// ErrNilStore 未指定变更存储。
	ErrNilStore = errors.New("function: nil change store")
)
