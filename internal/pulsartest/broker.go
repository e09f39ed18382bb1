package pulsartest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

var (
	// ErrClosed 客户端或消费者已关闭。
	ErrClosed = errors.New("pulsartest: closed")
	// ErrExclusiveBusy Exclusive 订阅已有消费者。
	ErrExclusiveBusy = errors.New("pulsartest: exclusive subscription already has a consumer")
	// ErrNoTopic 未指定 topic。
	ErrNoTopic = errors.New("pulsartest: no topic")
)

type topicLog struct {
	ledger int64
	msgs   []*Message
	subs   map[string]*subscription
}

type subscription struct {
	name      string
	typ       pulsar.SubscriptionType
	cursor    int
	redeliver []*Message
	consumers int
	dlq       *pulsar.DLQPolicy
	// nackDelay 大于 0 时 nack 的消息延迟后才重新投递。
	nackDelay time.Duration
}

// Broker 进程内 broker，多个 Client 可共享同一个 Broker。
type Broker struct {
	mu      sync.Mutex
	topics  map[string]*topicLog
	notify  chan struct{}
	nextLID int64
}

// NewBroker 创建空 broker。
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topicLog), notify: make(chan struct{})}
}

// Client 返回连接到该 broker 的 pulsar.Client。
func (b *Broker) Client() *Client {
	return &Client{broker: b}
}

// Messages 返回 topic 上已发布的全部消息。
func (b *Broker) Messages(topic string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[topic]; ok {
		return slices.Clone(t.msgs)
	}
	return nil
}

// Topics 返回已存在的 topic。
func (b *Broker) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.topics))
	for name := range b.topics {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// topic 需持有 b.mu。
func (b *Broker) topic(name string) *topicLog {
	t, ok := b.topics[name]
	if !ok {
		b.nextLID++
		t = &topicLog{ledger: b.nextLID, subs: make(map[string]*subscription)}
		b.topics[name] = t
	}
	return t
}

// broadcast 需持有 b.mu。
func (b *Broker) broadcast() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *Broker) publish(topic string, pm *pulsar.ProducerMessage, producerName string) *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publishLocked(topic, pm, producerName)
}

func (b *Broker) publishLocked(topic string, pm *pulsar.ProducerMessage, producerName string) *Message {
	t := b.topic(topic)
	props := make(map[string]string, len(pm.Properties))
	for k, v := range pm.Properties {
		props[k] = v
	}
	msg := &Message{
		topic:        topic,
		id:           MessageID{ledger: t.ledger, entry: int64(len(t.msgs))},
		key:          pm.Key,
		orderingKey:  pm.OrderingKey,
		payload:      slices.Clone(pm.Payload),
		props:        props,
		eventTime:    pm.EventTime,
		publishTime:  time.Now(),
		producerName: producerName,
	}
	t.msgs = append(t.msgs, msg)
	b.broadcast()
	return msg
}

func (b *Broker) resolveTopics(opts pulsar.ConsumerOptions) ([]string, error) {
	switch {
	case opts.Topic != "":
		return []string{opts.Topic}, nil
	case len(opts.Topics) > 0:
		return slices.Clone(opts.Topics), nil
	case opts.TopicsPattern != "":
		re, err := regexp.Compile(opts.TopicsPattern)
		if err != nil {
			return nil, err
		}
		var out []string
		for name := range b.topics {
			if re.MatchString(name) {
				out = append(out, name)
			}
		}
		slices.Sort(out)
		return out, nil
	}
	return nil, ErrNoTopic
}

func (b *Broker) subscribe(opts pulsar.ConsumerOptions) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics, err := b.resolveTopics(opts)
	if err != nil {
		return nil, err
	}
	for _, name := range topics {
		t := b.topic(name)
		s, ok := t.subs[opts.SubscriptionName]
		if !ok {
			s = &subscription{
				name:      opts.SubscriptionName,
				typ:       opts.Type,
				dlq:       opts.DLQ,
				nackDelay: opts.NackRedeliveryDelay,
			}
			if opts.SubscriptionInitialPosition == pulsar.SubscriptionPositionLatest {
				s.cursor = len(t.msgs)
			}
			t.subs[opts.SubscriptionName] = s
		}
		if s.typ == pulsar.Exclusive && s.consumers > 0 {
			return nil, fmt.Errorf("%w: %s/%s", ErrExclusiveBusy, name, s.name)
		}
	}
	for _, name := range topics {
		b.topics[name].subs[opts.SubscriptionName].consumers++
	}
	return topics, nil
}

func (b *Broker) unsubscribeConsumer(topics []string, sub string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range topics {
		if s, ok := b.topics[name].subs[sub]; ok && s.consumers > 0 {
			s.consumers--
		}
	}
}

// next 取一条待投递消息；没有时返回等待通道。
func (b *Broker) next(topics []string, sub string) (*Message, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range topics {
		s := b.topics[name].subs[sub]
		if len(s.redeliver) > 0 {
			m := s.redeliver[0]
			s.redeliver = s.redeliver[1:]
			return m, nil
		}
	}
	for _, name := range topics {
		t := b.topics[name]
		s := t.subs[sub]
		if s.cursor < len(t.msgs) {
			m := t.msgs[s.cursor]
			s.cursor++
			return m, nil
		}
	}
	return nil, b.notify
}

func (b *Broker) nack(m *Message, sub string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[m.topic]
	if !ok {
		return
	}
	s, ok := t.subs[sub]
	if !ok {
		return
	}
	again := m.redeliver()
	if s.dlq != nil && s.dlq.MaxDeliveries > 0 && again.redelivery >= s.dlq.MaxDeliveries {
		dlt := s.dlq.DeadLetterTopic
		if dlt == "" {
			dlt = m.topic + "-" + sub + "-DLQ"
		}
		b.publishLocked(dlt, &pulsar.ProducerMessage{
			Key:        m.key,
			Payload:    m.payload,
			Properties: m.props,
		}, m.producerName)
		return
	}
	if s.nackDelay > 0 {
		time.AfterFunc(s.nackDelay, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			s.redeliver = append(s.redeliver, again)
			b.broadcast()
		})
		return
	}
	s.redeliver = append(s.redeliver, again)
	b.broadcast()
}

// startIndex 返回 reader 起始下标。
func (b *Broker) startIndex(topic string, id pulsar.MessageID, inclusive bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topic(topic)
	if id == nil || id.LedgerID() == math.MaxInt64 {
		return len(t.msgs)
	}
	if id.LedgerID() < 0 {
		return 0
	}
	idx := int(id.EntryID())
	if !inclusive {
		idx++
	}
	return min(max(idx, 0), len(t.msgs))
}

func (b *Broker) at(topic string, idx int) (*Message, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topic(topic)
	if idx < len(t.msgs) {
		return t.msgs[idx], nil
	}
	return nil, b.notify
}

func (b *Broker) length(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topic(topic).msgs)
}

func wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
