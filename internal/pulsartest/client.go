package pulsartest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

// Client 实现 pulsar.Client。
type Client struct {
	broker *Broker
	closed atomic.Bool
	seq    atomic.Int64

	// ProducerErr/SubscribeErr/ReaderErr 非 nil 时对应的创建调用返回该错误。
	ProducerErr  error
	SubscribeErr error
	ReaderErr    error
}

// NewClient 创建带独立 broker 的客户端。
func NewClient() *Client {
	return NewBroker().Client()
}

// Broker 返回所连接的 broker。
func (c *Client) Broker() *Broker { return c.broker }

// Closed 报告 Close 是否已调用。
func (c *Client) Closed() bool { return c.closed.Load() }

func (c *Client) CreateProducer(opts pulsar.ProducerOptions) (pulsar.Producer, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.ProducerErr != nil {
		return nil, c.ProducerErr
	}
	if opts.Topic == "" {
		return nil, ErrNoTopic
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("pulsartest-producer-%d", c.seq.Add(1))
	}
	return &Producer{broker: c.broker, topic: opts.Topic, name: name}, nil
}

func (c *Client) Subscribe(opts pulsar.ConsumerOptions) (pulsar.Consumer, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	topics, err := c.broker.subscribe(opts)
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("pulsartest-consumer-%d", c.seq.Add(1))
	}
	return &Consumer{broker: c.broker, topics: topics, sub: opts.SubscriptionName, name: name}, nil
}

func (c *Client) CreateReader(opts pulsar.ReaderOptions) (pulsar.Reader, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.ReaderErr != nil {
		return nil, c.ReaderErr
	}
	if opts.Topic == "" {
		return nil, ErrNoTopic
	}
	idx := c.broker.startIndex(opts.Topic, opts.StartMessageID, opts.StartMessageIDInclusive)
	return &Reader{broker: c.broker, topic: opts.Topic, idx: idx}, nil
}

func (c *Client) CreateTableView(pulsar.TableViewOptions) (pulsar.TableView, error) {
	return nil, fmt.Errorf("pulsartest: table view not supported")
}

func (c *Client) TopicPartitions(topic string) ([]string, error) {
	return []string{topic}, nil
}

func (c *Client) NewTransaction(time.Duration) (pulsar.Transaction, error) {
	return nil, fmt.Errorf("pulsartest: transactions not supported")
}

func (c *Client) Close() { c.closed.Store(true) }

// Producer 实现 pulsar.Producer，SendAsync 同步回调。
type Producer struct {
	broker *Broker
	topic  string
	name   string
	seq    atomic.Int64
	closed atomic.Bool
}

func (p *Producer) Topic() string { return p.topic }
func (p *Producer) Name() string  { return p.name }

func (p *Producer) Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.seq.Add(1)
	return p.broker.publish(p.topic, msg, p.name).ID(), nil
}

func (p *Producer) SendAsync(ctx context.Context, msg *pulsar.ProducerMessage, callback func(pulsar.MessageID, *pulsar.ProducerMessage, error)) {
	id, err := p.Send(ctx, msg)
	if callback != nil {
		callback(id, msg, err)
	}
}

func (p *Producer) LastSequenceID() int64              { return p.seq.Load() - 1 }
func (p *Producer) Flush() error                       { return nil }
func (p *Producer) FlushWithCtx(context.Context) error { return nil }
func (p *Producer) Close()                             { p.closed.Store(true) }

// Consumer 实现 pulsar.Consumer。
type Consumer struct {
	broker *Broker
	topics []string
	sub    string
	name   string

	mu     sync.Mutex
	acked  []pulsar.MessageID
	nacked int
	closed atomic.Bool
}

// Acked 返回已 ack 的消息 ID。
func (c *Consumer) Acked() []pulsar.MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pulsar.MessageID(nil), c.acked...)
}

// Nacked 返回 nack 次数。
func (c *Consumer) Nacked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nacked
}

func (c *Consumer) Subscription() string { return c.sub }
func (c *Consumer) Name() string         { return c.name }
func (c *Consumer) Unsubscribe() error   { return nil }
func (c *Consumer) UnsubscribeForce() error {
	return nil
}

func (c *Consumer) GetLastMessageIDs() ([]pulsar.TopicMessageID, error) { return nil, nil }

func (c *Consumer) Receive(ctx context.Context) (pulsar.Message, error) {
	for {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		m, ch := c.broker.next(c.topics, c.sub)
		if m != nil {
			return m, nil
		}
		if err := wait(ctx, ch); err != nil {
			return nil, err
		}
	}
}

func (c *Consumer) Chan() <-chan pulsar.ConsumerMessage { return nil }

func (c *Consumer) Ack(msg pulsar.Message) error {
	if msg == nil {
		return fmt.Errorf("pulsartest: nil message")
	}
	return c.AckID(msg.ID())
}

func (c *Consumer) AckID(id pulsar.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, id)
	return nil
}

func (c *Consumer) AckIDList(ids []pulsar.MessageID) error {
	for _, id := range ids {
		if err := c.AckID(id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) AckWithTxn(msg pulsar.Message, _ pulsar.Transaction) error { return c.Ack(msg) }
func (c *Consumer) AckCumulative(msg pulsar.Message) error                    { return c.Ack(msg) }
func (c *Consumer) AckIDCumulative(id pulsar.MessageID) error                 { return c.AckID(id) }

func (c *Consumer) ReconsumeLater(msg pulsar.Message, _ time.Duration) { c.Nack(msg) }

func (c *Consumer) ReconsumeLaterWithCustomProperties(msg pulsar.Message, _ map[string]string, _ time.Duration) {
	c.Nack(msg)
}

func (c *Consumer) Nack(msg pulsar.Message) {
	m, ok := msg.(*Message)
	if !ok {
		return
	}
	c.mu.Lock()
	c.nacked++
	c.mu.Unlock()
	c.broker.nack(m, c.sub)
}

func (c *Consumer) NackID(pulsar.MessageID) {}

func (c *Consumer) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.broker.unsubscribeConsumer(c.topics, c.sub)
	}
}

func (c *Consumer) Seek(pulsar.MessageID) error { return nil }
func (c *Consumer) SeekByTime(time.Time) error  { return nil }

// Reader 实现 pulsar.Reader。
type Reader struct {
	broker *Broker
	topic  string

	mu     sync.Mutex
	idx    int
	closed atomic.Bool
}

func (r *Reader) Topic() string { return r.topic }

func (r *Reader) Next(ctx context.Context) (pulsar.Message, error) {
	for {
		if r.closed.Load() {
			return nil, ErrClosed
		}
		r.mu.Lock()
		m, ch := r.broker.at(r.topic, r.idx)
		if m != nil {
			r.idx++
		}
		r.mu.Unlock()
		if m != nil {
			return m, nil
		}
		if err := wait(ctx, ch); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) HasNext() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx < r.broker.length(r.topic)
}

func (r *Reader) Close() { r.closed.Store(true) }

func (r *Reader) Seek(id pulsar.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx = r.broker.startIndex(r.topic, id, true)
	return nil
}

func (r *Reader) SeekByTime(time.Time) error { return nil }

func (r *Reader) GetLastMessageID() (pulsar.MessageID, error) {
	n := r.broker.length(r.topic)
	if n == 0 {
		return pulsar.EarliestMessageID(), nil
	}
	return r.broker.Messages(r.topic)[n-1].ID(), nil
}

var (
	_ pulsar.Client   = (*Client)(nil)
	_ pulsar.Producer = (*Producer)(nil)
	_ pulsar.Consumer = (*Consumer)(nil)
	_ pulsar.Reader   = (*Reader)(nil)
)
