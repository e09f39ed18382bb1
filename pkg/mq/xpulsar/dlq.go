package xpulsar

import (
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// DefaultMaxDeliveries DLQBuilder 的默认最大投递次数。
const DefaultMaxDeliveries = 3

// DLQBuilder 构建 pulsar.DLQPolicy。
type DLQBuilder struct {
	maxDeliveries           uint32
	deadLetterTopic         string
	retryLetterTopic        string
	initialSubscriptionName string
	producerOptions         pulsar.ProducerOptions
}

// NewDLQBuilder 创建构建器，最大投递次数默认 3。
func NewDLQBuilder() *DLQBuilder {
	return &DLQBuilder{maxDeliveries: DefaultMaxDeliveries}
}

// WithMaxDeliveries 超过 n 次投递的消息转入死信 topic。n 为 0 时忽略。
func (b *DLQBuilder) WithMaxDeliveries(n uint32) *DLQBuilder {
	if n > 0 {
		b.maxDeliveries = n
	}
	return b
}

// WithDeadLetterTopic 为空时 broker 生成 {topic}-{subscription}-DLQ。
func (b *DLQBuilder) WithDeadLetterTopic(topic string) *DLQBuilder {
	b.deadLetterTopic = topic
	return b
}

// WithRetryLetterTopic 为空时 broker 生成 {topic}-{subscription}-RETRY。
func (b *DLQBuilder) WithRetryLetterTopic(topic string) *DLQBuilder {
	b.retryLetterTopic = topic
	return b
}

// WithInitialSubscription 死信 topic 首次创建时建立的订阅。
func (b *DLQBuilder) WithInitialSubscription(name string) *DLQBuilder {
	b.initialSubscriptionName = name
	return b
}

// WithProducerOptions 设置写死信 topic 的生产者选项。
func (b *DLQBuilder) WithProducerOptions(opts pulsar.ProducerOptions) *DLQBuilder {
	b.producerOptions = opts
	return b
}

// MaxDeliveries 返回当前的最大投递次数。
func (b *DLQBuilder) MaxDeliveries() uint32 { return b.maxDeliveries }

func (b *DLQBuilder) Build() *pulsar.DLQPolicy {
	return &pulsar.DLQPolicy{
		MaxDeliveries:           b.maxDeliveries,
		DeadLetterTopic:         b.deadLetterTopic,
		RetryLetterTopic:        b.retryLetterTopic,
		InitialSubscriptionName: b.initialSubscriptionName,
		ProducerOptions:         b.producerOptions,
	}
}

type nackBackoff struct {
	policy xretry.BackoffPolicy
}

// ToPulsarNackBackoff 把 xretry.BackoffPolicy 适配为 pulsar.NackBackoffPolicy。
func ToPulsarNackBackoff(policy xretry.BackoffPolicy) pulsar.NackBackoffPolicy {
	if policy == nil {
		return nil
	}
	return &nackBackoff{policy: policy}
}

// maxNackAttempt 防止 32 位平台上 redeliveryCount+1 溢出。
const maxNackAttempt = 1 << 30

// Next pulsar 的 redeliveryCount 从 0 开始，xretry 的 attempt 从 1 开始。
func (b *nackBackoff) Next(redeliveryCount uint32) time.Duration {
	attempt := int(redeliveryCount) + 1
	if attempt <= 0 || attempt > maxNackAttempt {
		attempt = maxNackAttempt
	}
	return b.policy.NextDelay(attempt)
}

var _ pulsar.NackBackoffPolicy = (*nackBackoff)(nil)

// MultiplierBackoff 无抖动的乘数退避：第 n 次重投延迟
// min(minDelay * multiplier^(n-1), maxDelay)。
func MultiplierBackoff(minDelay, maxDelay time.Duration, multiplier float64) *xretry.ExponentialBackoff {
	return xretry.NewExponentialBackoff(
		xretry.WithInitialDelay(minDelay),
		xretry.WithMaxDelay(maxDelay),
		xretry.WithMultiplier(multiplier),
		xretry.WithJitter(0),
	)
}

// ConsumerOptionsBuilder 构建带 DLQ 和重投退避的 pulsar.ConsumerOptions。
type ConsumerOptionsBuilder struct {
	opts pulsar.ConsumerOptions
}

// NewConsumerOptionsBuilder 默认订阅类型为 Shared：DLQ 只在 Shared/Key_Shared 下生效。
func NewConsumerOptionsBuilder(topic, subscription string) *ConsumerOptionsBuilder {
	return &ConsumerOptionsBuilder{opts: pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscription,
		Type:             pulsar.Shared,
	}}
}

// From 以已有选项为起点。
func (b *ConsumerOptionsBuilder) From(opts pulsar.ConsumerOptions) *ConsumerOptionsBuilder {
	b.opts = opts
	return b
}

func (b *ConsumerOptionsBuilder) WithType(t pulsar.SubscriptionType) *ConsumerOptionsBuilder {
	b.opts.Type = t
	return b
}

func (b *ConsumerOptionsBuilder) WithDLQ(builder *DLQBuilder) *ConsumerOptionsBuilder {
	if builder != nil {
		b.opts.DLQ = builder.Build()
	}
	return b
}

func (b *ConsumerOptionsBuilder) WithNackBackoff(policy xretry.BackoffPolicy) *ConsumerOptionsBuilder {
	if policy != nil {
		b.opts.NackBackoffPolicy = ToPulsarNackBackoff(policy)
	}
	return b
}

// WithNackRedeliveryDelay delay <= 0 时保持默认值。
func (b *ConsumerOptionsBuilder) WithNackRedeliveryDelay(delay time.Duration) *ConsumerOptionsBuilder {
	if delay > 0 {
		b.opts.NackRedeliveryDelay = delay
	}
	return b
}

func (b *ConsumerOptionsBuilder) WithRetryEnable(enable bool) *ConsumerOptionsBuilder {
	b.opts.RetryEnable = enable
	return b
}

func (b *ConsumerOptionsBuilder) WithInitialPosition(pos pulsar.SubscriptionInitialPosition) *ConsumerOptionsBuilder {
	b.opts.SubscriptionInitialPosition = pos
	return b
}

func (b *ConsumerOptionsBuilder) Build() pulsar.ConsumerOptions {
	return b.opts
}
