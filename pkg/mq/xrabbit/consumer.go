package xrabbit

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AllMessages 表示不限制消费数量。
const AllMessages = -1

// Handler 处理一条投递。返回错误会终止消费。
type Handler func(ctx context.Context, d amqp.Delivery) error

// Consumer 以自动确认模式消费持久化队列。
type Consumer struct {
	client Client
	queue  string
	tag    string
}

// NewConsumer queue 为空时使用 DefaultQueue，tag 为空时由 broker 生成。
func NewConsumer(client Client, queue, tag string) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Consumer{client: client, queue: queue, tag: tag}
}

// Consume 消费 n 条消息后返回，n 为 AllMessages 时直到 ctx 取消。
// 返回实际处理的消息数。
func (c *Consumer) Consume(ctx context.Context, n int, handler Handler) (int, error) {
	if n == 0 {
		return 0, nil
	}
	ch := c.client.Channel()
	if ch == nil {
		return 0, ErrClosed
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return 0, fmt.Errorf("xrabbit: declare queue %s: %w", c.queue, err)
	}
	deliveries, err := ch.Consume(c.queue, c.tag, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("xrabbit: consume %s: %w", c.queue, err)
	}
	if c.tag != "" {
		defer func() { _ = ch.Cancel(c.tag, false) }()
	}

	received := 0
	for n == AllMessages || received < n {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return received, fmt.Errorf("%w: delivery channel closed", ErrClosed)
			}
			received++
			if handler != nil {
				if err := handler(ctx, d); err != nil {
					return received, err
				}
			}
		}
	}
	return received, nil
}
