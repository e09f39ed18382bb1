package xjms

import (
	"errors"
	"fmt"

	"github.com/omeyang/xworkshop/internal/mqcore"
)

var (
	ErrNilClient  = mqcore.ErrNilClient
	ErrNilHandler = mqcore.ErrNilHandler
	ErrEmptyName  = mqcore.ErrEmptyTopic
)

var (
	// ErrReceiveTimeout 在超时前没有收到满足条件的消息。
	ErrReceiveTimeout = errors.New("xjms: receive timeout")

	// ErrInvalidKind 目的地类型不是 queue 或 topic。
	ErrInvalidKind = errors.New("xjms: invalid destination kind")

	// ErrInvalidMode 未知的消费模式。
	ErrInvalidMode = errors.New("xjms: invalid consumer mode")

	// ErrSubscriptionRequired 共享或持久消费需要订阅名。
	ErrSubscriptionRequired = errors.New("xjms: subscription name required")

	// ErrTopicRequired 共享或持久消费只能用于 topic。
	ErrTopicRequired = errors.New("xjms: destination must be a topic")

	// ErrQueueRequired 浏览器和应答服务只能用于 queue。
	ErrQueueRequired = errors.New("xjms: destination must be a queue")

	// ErrNoReplyTo 请求消息缺少 JMSReplyTo。
	ErrNoReplyTo = errors.New("xjms: message has no reply destination")
)

// SelectorError 选择器语法错误。
type SelectorError struct {
	Selector string
	Pos      int
	Msg      string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("xjms: invalid selector %q at %d: %s", e.Selector, e.Pos, e.Msg)
}
