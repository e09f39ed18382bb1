package xjms

import (
	"context"
	"errors"
	"time"

	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
)

// Receiver 按选择器接收消息。收到的匹配消息在返回前已 ack。
type Receiver struct {
	dest     Destination
	mode     ConsumerMode
	selector *Selector
	consumer *xpulsar.TracingConsumer
}

// CreateReceiver 以 ModeConsumer 创建接收者。queue 上使用共享订阅，
// topic 上使用随机命名的独占非持久订阅。
func (s *Session) CreateReceiver(dest Destination, selector string) (*Receiver, error) {
	return s.CreateConsumer(dest, ModeConsumer, "", selector)
}

// CreateConsumer 按模式创建接收者。selector 为空表示接收全部消息。
func (s *Session) CreateConsumer(dest Destination, mode ConsumerMode, subscription, selector string) (*Receiver, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	opts, err := s.consumerOptions(dest, mode, subscription)
	if err != nil {
		return nil, err
	}
	c, err := xpulsar.NewTracingConsumer(s.client, opts)
	if err != nil {
		return nil, err
	}
	return &Receiver{dest: dest, mode: mode, selector: sel, consumer: c}, nil
}

func (r *Receiver) Destination() Destination { return r.dest }

func (r *Receiver) Subscription() string { return r.consumer.Subscription() }

func (r *Receiver) Selector() *Selector { return r.selector }

// Receive 等待下一条满足选择器的消息。timeout <= 0 时一直等到 ctx 结束。
// 超时返回 ErrReceiveTimeout。
func (r *Receiver) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for {
		msgCtx, msg, err := r.consumer.ReceiveWithContext(rctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, ErrReceiveTimeout
			}
			return nil, err
		}
		m := fromPulsar(msg)
		if !r.selector.Matches(m.Properties) {
			if r.dest.IsQueue() {
				// 留给同一订阅上的其他接收者
				r.consumer.Nack(msg)
			} else if err := r.consumer.Ack(msg); err != nil {
				xlog.Warn(msgCtx, "ack filtered message failed", xlog.Topic(m.Topic), xlog.Err(err))
			}
			xlog.Debug(msgCtx, "message filtered by selector",
				xlog.Topic(m.Topic), xlog.MessageID(m.ID), xlog.Subscription(r.Subscription()))
			continue
		}
		if err := r.consumer.Ack(msg); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func (r *Receiver) Close() { r.consumer.Close() }
