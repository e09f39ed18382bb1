package xrabbit

import "errors"

var (
	// ErrNack broker 拒绝了消息。
	ErrNack = errors.New("xrabbit: message nacked by broker")

	// ErrConfirmTimeout 等待 publisher confirm 超时。
	ErrConfirmTimeout = errors.New("xrabbit: publisher confirm timeout")

	// ErrClosed 客户端已关闭或 channel 不可用。
	ErrClosed = errors.New("xrabbit: client closed")

	// ErrEmptyHost 未配置 host 且未配置 amqp_URI。
	ErrEmptyHost = errors.New("xrabbit: host is required")

	// ErrEmptyQueue 队列名为空。
	ErrEmptyQueue = errors.New("xrabbit: queue name is required")

	// ErrInvalidPort 端口超出范围。
	ErrInvalidPort = errors.New("xrabbit: invalid port")
)
