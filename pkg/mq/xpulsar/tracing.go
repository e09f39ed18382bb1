package xpulsar

import (
	"context"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// MessageHandler 处理一条消息，返回错误时消息被 nack。
type MessageHandler func(ctx context.Context, msg pulsar.Message) error

// TracingProducer 在发送前把追踪上下文写入消息 properties。
type TracingProducer struct {
	pulsar.Producer
	tracer   Tracer
	observer xmetrics.Observer
	topic    string
}

// WrapProducer 包装生产者，topic 为空时取 producer.Topic()。
func WrapProducer(producer pulsar.Producer, tracer Tracer, observer xmetrics.Observer) (*TracingProducer, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	if tracer == nil {
		tracer = NoopTracer{}
	}
	if observer == nil {
		observer = xmetrics.NoopObserver{}
	}
	return &TracingProducer{Producer: producer, tracer: tracer, observer: observer, topic: producer.Topic()}, nil
}

// NewTracingProducer 用客户端的追踪器和观测接口创建生产者。
func NewTracingProducer(client Client, options pulsar.ProducerOptions) (*TracingProducer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	p, err := client.CreateProducer(options)
	if err != nil {
		return nil, err
	}
	return WrapProducer(p, client.Tracer(), client.Observer())
}

func (p *TracingProducer) inject(ctx context.Context, msg *pulsar.ProducerMessage) {
	if msg.Properties == nil {
		msg.Properties = make(map[string]string)
	}
	p.tracer.Inject(ctx, msg.Properties)
}

// Send 同步发送。
func (p *TracingProducer) Send(ctx context.Context, msg *pulsar.ProducerMessage) (id pulsar.MessageID, err error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := xmetrics.Start(ctx, p.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "produce",
		Kind:      xmetrics.KindProducer,
		Attrs:     pulsarAttrs(p.topic),
	})
	defer func() {
		result := xmetrics.Result{Err: err}
		if id != nil {
			result.Attrs = []xmetrics.Attr{xmetrics.String("messaging.message.id", id.String())}
		}
		span.End(result)
	}()

	p.inject(ctx, msg)
	return p.Producer.Send(ctx, msg)
}

// SendAsync 异步发送，callback 在 SDK 的回调 goroutine 中执行。
func (p *TracingProducer) SendAsync(ctx context.Context, msg *pulsar.ProducerMessage, callback func(pulsar.MessageID, *pulsar.ProducerMessage, error)) {
	if msg == nil {
		if callback != nil {
			callback(nil, nil, ErrNilMessage)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := xmetrics.Start(ctx, p.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "produce",
		Kind:      xmetrics.KindProducer,
		Attrs:     pulsarAttrs(p.topic),
	})
	p.inject(ctx, msg)
	p.Producer.SendAsync(ctx, msg, func(id pulsar.MessageID, m *pulsar.ProducerMessage, err error) {
		span.End(xmetrics.Result{Err: err})
		if callback != nil {
			callback(id, m, err)
		}
	})
}

// TracingConsumer 接收时从 properties 提取追踪上下文。
type TracingConsumer struct {
	pulsar.Consumer
	tracer   Tracer
	observer xmetrics.Observer
	topic    string
}

// WrapConsumer 包装消费者。topic 仅用于观测属性。
func WrapConsumer(consumer pulsar.Consumer, topic string, tracer Tracer, observer xmetrics.Observer) (*TracingConsumer, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}
	if tracer == nil {
		tracer = NoopTracer{}
	}
	if observer == nil {
		observer = xmetrics.NoopObserver{}
	}
	return &TracingConsumer{Consumer: consumer, tracer: tracer, observer: observer, topic: topic}, nil
}

// NewTracingConsumer 用客户端的追踪器和观测接口订阅。
func NewTracingConsumer(client Client, options pulsar.ConsumerOptions) (*TracingConsumer, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	c, err := client.Subscribe(options)
	if err != nil {
		return nil, err
	}
	return WrapConsumer(c, topicOf(options), client.Tracer(), client.Observer())
}

func topicOf(opts pulsar.ConsumerOptions) string {
	switch {
	case opts.Topic != "":
		return opts.Topic
	case len(opts.Topics) == 1:
		return opts.Topics[0]
	case len(opts.Topics) > 1:
		return "multi"
	case opts.TopicsPattern != "":
		return "pattern"
	}
	return ""
}

// ReceiveWithContext 接收一条消息，返回合并了消息追踪上下文的 ctx。
func (c *TracingConsumer) ReceiveWithContext(ctx context.Context) (context.Context, pulsar.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	msg, err := c.Receive(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return mqcore.MergeTraceContext(ctx, c.tracer.Extract(msg.Properties())), msg, nil
}

// Consume 接收并处理一条消息：成功 ack，失败 nack。
// ack 失败只记录在观测属性中，不影响返回值。
func (c *TracingConsumer) Consume(ctx context.Context, handler MessageHandler) (err error) {
	if handler == nil {
		return ErrNilHandler
	}
	msgCtx, msg, err := c.ReceiveWithContext(ctx)
	if err != nil {
		return err
	}

	attrs := pulsarAttrs(msg.Topic())
	if sub := c.Subscription(); sub != "" {
		attrs = append(attrs, xmetrics.String("messaging.consumer.group.name", sub))
	}
	if id := msg.ID(); id != nil {
		attrs = append(attrs, xmetrics.String("messaging.message.id", id.String()))
	}
	var ackErr error
	msgCtx, span := xmetrics.Start(msgCtx, c.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "consume",
		Kind:      xmetrics.KindConsumer,
		Attrs:     attrs,
	})
	defer func() {
		result := xmetrics.Result{Err: err}
		if ackErr != nil {
			result.Attrs = []xmetrics.Attr{xmetrics.String("messaging.pulsar.ack_error", ackErr.Error())}
		}
		span.End(result)
	}()

	if err = handler(msgCtx, msg); err != nil {
		c.Nack(msg)
		return err
	}
	ackErr = c.Ack(msg)
	return nil
}

// ConsumeLoop 循环消费直到 ctx 取消或处理完 budget 条消息。
// budget 为 nil 表示不限；backoff 为 nil 时使用默认指数退避。
func (c *TracingConsumer) ConsumeLoop(ctx context.Context, handler MessageHandler, budget *mqcore.Budget, backoff xretry.BackoffPolicy, onError func(error)) error {
	if handler == nil {
		return ErrNilHandler
	}
	return mqcore.RunConsumeLoop(ctx, func(ctx context.Context) error {
		return c.Consume(ctx, handler)
	}, mqcore.WithBudget(budget), mqcore.WithBackoff(backoff), mqcore.WithOnError(onError))
}
