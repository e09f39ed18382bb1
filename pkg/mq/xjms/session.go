package xjms

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/util/xid"
)

const (
	// DefaultQueueSubscription queue 接收者共享的订阅名。
	DefaultQueueSubscription = "jms-queue"

	// DefaultNackDelay queue 上不匹配选择器的消息重新投递的延迟。
	DefaultNackDelay = time.Second

	// confQueueSubscription 配置文件中覆盖 queue 订阅名的键（jms 分类）。
	confQueueSubscription = "queueSubscriptionName"
)

// Session 创建发送者、接收者与浏览器。不持有客户端的所有权。
type Session struct {
	client    xpulsar.Client
	conf      *pulsarconf.Conf
	queueSub  string
	nackDelay time.Duration
	ids       *xid.Generator
}

// Option Session 选项。
type Option func(*Session)

// WithConf 从配置文件映射 producer/consumer/reader 选项。
func WithConf(conf *pulsarconf.Conf) Option {
	return func(s *Session) {
		if conf != nil {
			s.conf = conf
		}
	}
}

// WithQueueSubscription 覆盖 queue 订阅名。
func WithQueueSubscription(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.queueSub = name
		}
	}
}

// WithNackDelay d <= 0 时忽略。
func WithNackDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.nackDelay = d
		}
	}
}

// WithIDGenerator 指定 JMSMessageID 的生成器，默认使用 xid.Default。
func WithIDGenerator(g *xid.Generator) Option {
	return func(s *Session) {
		if g != nil {
			s.ids = g
		}
	}
}

// NewSession 创建会话。
func NewSession(client xpulsar.Client, opts ...Option) (*Session, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	empty, err := pulsarconf.FromMap(nil)
	if err != nil {
		return nil, err
	}
	s := &Session{client: client, conf: empty, nackDelay: DefaultNackDelay}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.queueSub == "" {
		s.queueSub = s.conf.Raw(pulsarconf.CategoryJMS, confQueueSubscription)
	}
	if s.queueSub == "" {
		s.queueSub = DefaultQueueSubscription
	}
	if s.ids == nil {
		g, err := xid.Default()
		if err != nil {
			return nil, fmt.Errorf("xjms: id generator: %w", err)
		}
		s.ids = g
	}
	return s, nil
}

// QueueSubscription 返回 queue 使用的订阅名。
func (s *Session) QueueSubscription() string { return s.queueSub }

// consumerOptions 按目的地与模式生成订阅参数。
func (s *Session) consumerOptions(dest Destination, mode ConsumerMode, subscription string) (pulsar.ConsumerOptions, error) {
	if err := dest.validate(); err != nil {
		return pulsar.ConsumerOptions{}, err
	}
	if dest.IsQueue() {
		if mode != ModeConsumer {
			return pulsar.ConsumerOptions{}, fmt.Errorf("%w: %s", ErrTopicRequired, mode)
		}
		opts := s.conf.ConsumerOptions([]string{dest.Name}, "", s.queueSub, pulsar.Shared)
		opts.SubscriptionMode = pulsar.Durable
		opts.SubscriptionInitialPosition = pulsar.SubscriptionPositionEarliest
		if opts.NackRedeliveryDelay <= 0 {
			opts.NackRedeliveryDelay = s.nackDelay
		}
		return opts, nil
	}

	if err := ValidateMode(mode, dest, subscription); err != nil {
		return pulsar.ConsumerOptions{}, err
	}
	if !mode.NeedsSubscription() && strings.TrimSpace(subscription) == "" {
		subscription = xid.ClientName("jms-sub-")
	}
	typ := pulsar.Exclusive
	if mode.shared() {
		typ = pulsar.Shared
	}
	opts := s.conf.ConsumerOptions([]string{dest.Name}, "", subscription, typ)
	opts.SubscriptionMode = pulsar.NonDurable
	if mode.durable() {
		opts.SubscriptionMode = pulsar.Durable
	}
	return opts, nil
}
