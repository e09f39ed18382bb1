package xpulsar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
)

// Client Pulsar 客户端。
type Client interface {
	// Client 返回底层 pulsar.Client。
	Client() pulsar.Client
	// Health 创建临时 Reader 验证与 broker 的连接。
	Health(ctx context.Context) error
	CreateProducer(options pulsar.ProducerOptions) (pulsar.Producer, error)
	Subscribe(options pulsar.ConsumerOptions) (pulsar.Consumer, error)
	CreateReader(options pulsar.ReaderOptions) (pulsar.Reader, error)
	// Tracer 返回客户端配置的追踪器。
	Tracer() Tracer
	// Observer 返回客户端配置的观测接口。
	Observer() xmetrics.Observer
	Stats() Stats
	// Close 关闭客户端，可重复调用。
	Close() error
}

// Stats 客户端统计。Connected 只表示 Close 尚未调用。
type Stats struct {
	Connected      bool
	ProducersCount int
	ConsumersCount int
	ReadersCount   int
}

// NewClient 创建客户端，url 如 "pulsar://localhost:6650"。
func NewClient(url string, opts ...Option) (Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	o := applyOptions(opts)
	pc, err := pulsar.NewClient(buildClientOptions(url, o))
	if err != nil {
		return nil, fmt.Errorf("xpulsar: connect %s: %w", url, err)
	}
	return &clientWrapper{client: pc, options: o}, nil
}

// Wrap 包装已创建的 pulsar.Client。
func Wrap(pc pulsar.Client, opts ...Option) (Client, error) {
	if pc == nil {
		return nil, ErrNilClient
	}
	return &clientWrapper{client: pc, options: applyOptions(opts)}, nil
}

func applyOptions(opts []Option) *clientOptions {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

type clientWrapper struct {
	client  pulsar.Client
	options *clientOptions

	producers atomic.Int32
	consumers atomic.Int32
	readers   atomic.Int32

	closed    atomic.Bool
	closeOnce sync.Once
	// healthWG 等待超时的健康检查清理完 reader。
	healthWG sync.WaitGroup
}

func (w *clientWrapper) Client() pulsar.Client       { return w.client }
func (w *clientWrapper) Tracer() Tracer              { return w.options.tracer }
func (w *clientWrapper) Observer() xmetrics.Observer { return w.options.observer }

type healthResult struct {
	reader pulsar.Reader
	err    error
}

func (w *clientWrapper) Health(ctx context.Context) (err error) {
	if w.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, w.options.healthTimeout)
	defer cancel()

	_, span := xmetrics.Start(ctx, w.options.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "health",
		Kind:      xmetrics.KindClient,
		Attrs:     pulsarAttrs(w.options.healthTopic),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	// CreateReader 不接受 ctx，超时后由后台 goroutine 回收 reader。
	resultCh := make(chan healthResult, 1)
	w.healthWG.Add(1)
	go func() {
		reader, err := w.client.CreateReader(pulsar.ReaderOptions{
			Topic:          w.options.healthTopic,
			StartMessageID: pulsar.LatestMessageID(),
		})
		resultCh <- healthResult{reader: reader, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			defer w.healthWG.Done()
			if r := <-resultCh; r.reader != nil {
				r.reader.Close()
			}
		}()
		return fmt.Errorf("%w: %w", ErrHealthCheck, ctx.Err())
	case r := <-resultCh:
		w.healthWG.Done()
		if r.reader != nil {
			r.reader.Close()
		}
		if r.err != nil {
			// topic 不存在说明连接本身正常。
			if msg := r.err.Error(); strings.Contains(msg, "TopicNotFound") || strings.Contains(msg, "not found") {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrHealthCheck, r.err)
		}
		return nil
	}
}

func (w *clientWrapper) CreateProducer(options pulsar.ProducerOptions) (pulsar.Producer, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	p, err := w.client.CreateProducer(options)
	if err != nil {
		return nil, fmt.Errorf("xpulsar: create producer on %s: %w", options.Topic, err)
	}
	w.producers.Add(1)
	return &trackedProducer{Producer: p, onClose: func() { w.producers.Add(-1) }}, nil
}

func (w *clientWrapper) Subscribe(options pulsar.ConsumerOptions) (pulsar.Consumer, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	c, err := w.client.Subscribe(options)
	if err != nil {
		return nil, fmt.Errorf("xpulsar: subscribe %s: %w", options.SubscriptionName, err)
	}
	w.consumers.Add(1)
	return &trackedConsumer{Consumer: c, onClose: func() { w.consumers.Add(-1) }}, nil
}

func (w *clientWrapper) CreateReader(options pulsar.ReaderOptions) (pulsar.Reader, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	r, err := w.client.CreateReader(options)
	if err != nil {
		return nil, fmt.Errorf("xpulsar: create reader on %s: %w", options.Topic, err)
	}
	w.readers.Add(1)
	return &trackedReader{Reader: r, onClose: func() { w.readers.Add(-1) }}, nil
}

func (w *clientWrapper) Stats() Stats {
	return Stats{
		Connected:      !w.closed.Load(),
		ProducersCount: int(w.producers.Load()),
		ConsumersCount: int(w.consumers.Load()),
		ReadersCount:   int(w.readers.Load()),
	}
}

func (w *clientWrapper) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.healthWG.Wait()
		w.client.Close()
	})
	return nil
}

type trackedProducer struct {
	pulsar.Producer
	once    sync.Once
	onClose func()
}

func (p *trackedProducer) Close() {
	p.once.Do(func() {
		p.Producer.Close()
		p.onClose()
	})
}

type trackedConsumer struct {
	pulsar.Consumer
	once    sync.Once
	onClose func()
}

func (c *trackedConsumer) Close() {
	c.once.Do(func() {
		c.Consumer.Close()
		c.onClose()
	})
}

type trackedReader struct {
	pulsar.Reader
	once    sync.Once
	onClose func()
}

func (r *trackedReader) Close() {
	r.once.Do(func() {
		r.Reader.Close()
		r.onClose()
	})
}

var _ Client = (*clientWrapper)(nil)
