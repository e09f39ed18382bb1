package xrabbit

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultConfirmTimeout 等待 publisher confirm 的默认时间。
const DefaultConfirmTimeout = 5 * time.Second

// PublisherOption Publisher 选项。
type PublisherOption func(*Publisher)

// WithConfirmTimeout 设置确认超时。
func WithConfirmTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithContentType 设置消息的 content type，默认 text/plain。
func WithContentType(ct string) PublisherOption {
	return func(p *Publisher) { p.contentType = ct }
}

// Publisher 向持久化队列逐条发送消息并等待确认。
//
// 并发调用 Publish 会被串行化。
type Publisher struct {
	client      Client
	queue       string
	timeout     time.Duration
	contentType string

	mu       sync.Mutex
	channel  Channel
	confirms chan amqp.Confirmation
	// nextTag 当前 channel 上下一条消息的 delivery tag。
	nextTag uint64
}

// NewPublisher 创建发送到 queue 的 Publisher，queue 为空时使用 DefaultQueue。
func NewPublisher(client Client, queue string, opts ...PublisherOption) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	p := &Publisher{
		client:      client,
		queue:       queue,
		timeout:     DefaultConfirmTimeout,
		contentType: "text/plain",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Queue 返回目标队列名。
func (p *Publisher) Queue() string { return p.queue }

// Publish 发送一条持久化消息并等待 broker 确认。
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := p.client.Channel()
	if ch == nil {
		return ErrClosed
	}
	if ch != p.channel {
		if err := p.prepare(ch); err != nil {
			return err
		}
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  p.contentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("xrabbit: publish: %w", err)
	}
	tag := p.nextTag
	p.nextTag++
	return p.waitConfirm(ctx, tag)
}

// prepare 在新 channel 上声明队列并注册确认监听。
func (p *Publisher) prepare(ch Channel) error {
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("xrabbit: declare queue %s: %w", p.queue, err)
	}
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 16))
	p.channel = ch
	p.nextTag = 1
	return nil
}

func (p *Publisher) waitConfirm(ctx context.Context, tag uint64) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				p.channel = nil
				return fmt.Errorf("%w: confirm channel closed", ErrClosed)
			}
			// 之前超时的消息迟到的确认
			if c.DeliveryTag < tag {
				continue
			}
			if !c.Ack {
				return ErrNack
			}
			return nil
		case <-timer.C:
			return ErrConfirmTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
