package mqcore

import "errors"

var (
	// ErrNilClient 客户端为 nil。
	ErrNilClient = errors.New("mq: nil client")
	// ErrNilMessage 消息为 nil。
	ErrNilMessage = errors.New("mq: nil message")
	// ErrNilHandler 处理函数为 nil。
	ErrNilHandler = errors.New("mq: nil handler")
	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("mq: client closed")
	// ErrEmptyTopic 未指定 topic 或队列名。
	ErrEmptyTopic = errors.New("mq: empty topic")
)
