package xrabbit

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// Channel 是 Publisher/Consumer 用到的 *amqp.Channel 方法集。
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// Client 维护 AMQP 连接与一个 confirm 模式的 channel。
type Client interface {
	// Channel 返回当前 channel，客户端关闭后返回 nil。
	Channel() Channel
	// NotifyReconnect 每次重连成功后收到一个信号。
	NotifyReconnect() <-chan struct{}
	Close() error
}

// Option 客户端选项。
type Option func(*clientOptions)

type clientOptions struct {
	backoff        xretry.BackoffPolicy
	maxAttempts    int
	heartbeat      time.Duration
	connectTimeout time.Duration
	connectionName string
	tlsConfig      *tls.Config
}

// WithReconnectBackoff 设置重连退避，默认 500ms 起步、最长 30s 的指数退避。
func WithReconnectBackoff(b xretry.BackoffPolicy) Option {
	return func(o *clientOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithMaxReconnectAttempts 单次断线的最大重连次数，0 表示不限。
func WithMaxReconnectAttempts(n int) Option {
	return func(o *clientOptions) {
		if n >= 0 {
			o.maxAttempts = n
		}
	}
}

// WithHeartbeat 设置心跳间隔。
func WithHeartbeat(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}

// WithConnectTimeout 设置建连超时。
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithConnectionName 设置在 broker 管理界面上显示的连接名。
func WithConnectionName(name string) Option {
	return func(o *clientOptions) { o.connectionName = name }
}

// WithTLSConfig 设置 amqps 连接的 TLS 配置。
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *clientOptions) { o.tlsConfig = cfg }
}

type client struct {
	url  string
	opts clientOptions

	mu          sync.RWMutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	connCloseCh chan *amqp.Error
	chCloseCh   chan *amqp.Error

	reconnectCh chan struct{}
	closeCh     chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// NewClient 建立连接并启动后台重连。
func NewClient(cfg Config, opts ...Option) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := clientOptions{
		backoff: xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(500*time.Millisecond),
			xretry.WithMaxDelay(30*time.Second),
		),
		heartbeat:      10 * time.Second,
		connectTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if cfg.TLS && o.tlsConfig == nil {
		o.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := &client{
		url:         cfg.URL(),
		opts:        o,
		reconnectCh: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.wg.Add(1)
	go c.reconnectLoop()
	return c, nil
}

func (c *client) Channel() Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return nil
	}
	return c.channel
}

func (c *client) NotifyReconnect() <-chan struct{} { return c.reconnectCh }

func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		if c.channel != nil {
			err = c.channel.Close()
			c.channel = nil
		}
		if c.conn != nil {
			if cerr := c.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
			c.conn = nil
		}
		c.mu.Unlock()
		c.wg.Wait()
	})
	return err
}

func (c *client) reconnectLoop() {
	defer c.wg.Done()
	ctx := context.Background()
	for {
		c.mu.RLock()
		connCloseCh, chCloseCh := c.connCloseCh, c.chCloseCh
		c.mu.RUnlock()

		select {
		case <-c.closeCh:
			return
		case err := <-connCloseCh:
			if err != nil {
				xlog.Default().Error(ctx, "rabbitmq connection closed", xlog.Err(err))
			}
		case err := <-chCloseCh:
			if err != nil {
				xlog.Default().Error(ctx, "rabbitmq channel closed", xlog.Err(err))
			}
		}
		if !c.reconnect(ctx) {
			return
		}
	}
}

// reconnect 返回 false 表示客户端已关闭或放弃重连。
func (c *client) reconnect(ctx context.Context) bool {
	for attempt := 1; c.opts.maxAttempts == 0 || attempt <= c.opts.maxAttempts; attempt++ {
		delay := c.opts.backoff.NextDelay(attempt)
		xlog.Default().Warn(ctx, "attempting rabbitmq reconnection", xlog.Duration(delay))
		timer := time.NewTimer(delay)
		select {
		case <-c.closeCh:
			timer.Stop()
			return false
		case <-timer.C:
		}

		if err := c.connect(); err != nil {
			xlog.Default().Error(ctx, "rabbitmq reconnect attempt failed", xlog.Err(err))
			continue
		}
		xlog.Default().Info(ctx, "rabbitmq reconnected")
		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return true
	}
	xlog.Default().Error(ctx, "rabbitmq reconnect attempts exhausted")
	return false
}

func (c *client) connect() error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:       c.opts.heartbeat,
		Dial:            amqp.DefaultDial(c.opts.connectTimeout),
		TLSClientConfig: c.opts.tlsConfig,
		Properties:      amqp.Table{"connection_name": c.opts.connectionName},
	})
	if err != nil {
		return fmt.Errorf("xrabbit: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("xrabbit: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("xrabbit: confirm mode: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.closeCh:
		c.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return ErrClosed
	default:
	}
	prevCh, prevConn := c.channel, c.conn
	c.conn, c.channel = conn, ch
	c.connCloseCh = conn.NotifyClose(make(chan *amqp.Error, 1))
	c.chCloseCh = ch.NotifyClose(make(chan *amqp.Error, 1))
	c.mu.Unlock()

	if prevCh != nil {
		_ = prevCh.Close()
	}
	if prevConn != nil {
		_ = prevConn.Close()
	}
	return nil
}
