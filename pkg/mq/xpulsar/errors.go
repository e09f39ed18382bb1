package xpulsar

import (
	"errors"

	"github.com/omeyang/xworkshop/internal/mqcore"
)

// 与 xrabbit、xjms 共享的错误。
var (
	ErrNilClient  = mqcore.ErrNilClient
	ErrNilMessage = mqcore.ErrNilMessage
	ErrNilHandler = mqcore.ErrNilHandler
	ErrClosed     = mqcore.ErrClosed
)

var (
	// ErrEmptyURL 服务地址为空。
	ErrEmptyURL = errors.New("xpulsar: empty service URL")

	// ErrNilProducer 生产者为 nil。
	ErrNilProducer = errors.New("xpulsar: nil producer")

	// ErrNilConsumer 消费者为 nil。
	ErrNilConsumer = errors.New("xpulsar: nil consumer")

	// ErrHealthCheck 健康检查失败。
	ErrHealthCheck = errors.New("xpulsar: health check failed")
)
