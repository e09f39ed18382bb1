package function

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/config/xconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/util/xlru"
)

// NamespaceKey 用户配置中 CdcRouter 输出 namespace 的键。
const NamespaceKey = "PULSAR_NAMESPACE"

// DefaultProducerCacheSize 动态 topic 生产者缓存大小。
const DefaultProducerCacheSize = 32

// Context 函数运行时上下文，在同一 Runner 的所有调用间共享，并发安全。
type Context struct {
	name   string
	inputs []string
	output string
	client xpulsar.Client
	conf   *pulsarconf.Conf
	logger xlog.Logger

	producers *xlru.Cache[string, *xpulsar.TracingProducer]

	mu     sync.RWMutex
	config map[string]string
}

func newContext(client xpulsar.Client, cfg Config, conf *pulsarconf.Conf, logger xlog.Logger) (*Context, error) {
	producers, err := xlru.New(xlru.Config{Size: DefaultProducerCacheSize},
		xlru.WithOnEvicted(func(_ string, p *xpulsar.TracingProducer) { p.Close() }))
	if err != nil {
		return nil, err
	}
	return &Context{
		name:      cfg.Name,
		inputs:    slices.Clone(cfg.Inputs),
		output:    cfg.Output,
		client:    client,
		conf:      conf,
		logger:    logger.With(xlog.Component("function"), xlog.Operation(cfg.Name)),
		producers: producers,
		config:    maps.Clone(cfg.UserConfig),
	}, nil
}

// NewContext 创建独立的上下文，供不经过 Runner 直接调用函数的场景使用。
func NewContext(client xpulsar.Client, cfg Config) (*Context, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	conf, err := pulsarconf.FromMap(nil)
	if err != nil {
		return nil, err
	}
	return newContext(client, cfg, conf, xlog.Default())
}

func (c *Context) FunctionName() string { return c.name }

func (c *Context) InputTopics() []string { return slices.Clone(c.inputs) }

func (c *Context) OutputTopic() string { return c.output }

func (c *Context) Logger() xlog.Logger { return c.logger }

// UserConfigValue 返回用户配置项。
func (c *Context) UserConfigValue(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.config[key]
	return v, ok
}

// UserConfig 返回用户配置副本。
func (c *Context) UserConfig() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.config)
}

// SetUserConfig 整体替换用户配置。
func (c *Context) SetUserConfig(cfg map[string]string) {
	c.mu.Lock()
	c.config = maps.Clone(cfg)
	c.mu.Unlock()
}

// Namespace 返回 PULSAR_NAMESPACE。
func (c *Context) Namespace() string {
	v, _ := c.UserConfigValue(NamespaceKey)
	return v
}

// WatchUserConfig 监视用户配置文件，文件变化后替换用户配置。
// 返回的 Watcher 需由调用方 Run 与 Stop。
func (c *Context) WatchUserConfig(cfg xconf.Config, opts ...xconf.WatchOption) (*xconf.Watcher, error) {
	c.SetUserConfig(flatten(cfg))
	return xconf.Watch(cfg, func(cfg xconf.Config, err error) {
		if err != nil {
			c.logger.Warn(context.Background(), "reload user config failed, keep previous values", xlog.Err(err))
			return
		}
		c.SetUserConfig(flatten(cfg))
		c.logger.Info(context.Background(), "user config reloaded", xlog.Key(NamespaceKey+"="+c.Namespace()))
	}, opts...)
}

// LoadUserConfig 读取用户配置文件（properties/yaml/json）。
func LoadUserConfig(path string) (xconf.Config, map[string]string, error) {
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("function: load user config: %w", err)
	}
	return cfg, flatten(cfg), nil
}

func flatten(cfg xconf.Config) map[string]string {
	flat := cfg.Flat()
	out := make(map[string]string, len(flat))
	for k, v := range flat {
		out[k] = xconf.ToString(v)
	}
	return out
}

func (c *Context) producer(topic string) (*xpulsar.TracingProducer, error) {
	return c.producers.GetOrCreate(topic, func(topic string) (*xpulsar.TracingProducer, error) {
		opts, err := c.conf.ProducerOptions(topic)
		if err != nil {
			return nil, err
		}
		return xpulsar.NewTracingProducer(c.client, opts)
	})
}

// Publish 同步发送到任意 topic。
func (c *Context) Publish(ctx context.Context, topic string, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	p, err := c.producer(topic)
	if err != nil {
		return nil, err
	}
	id, err := p.Send(ctx, msg)
	if err != nil {
		c.producers.Delete(topic)
	}
	return id, err
}

// PublishAsync 异步发送到任意 topic，callback 可为 nil。
func (c *Context) PublishAsync(ctx context.Context, topic string, msg *pulsar.ProducerMessage, callback func(pulsar.MessageID, error)) {
	p, err := c.producer(topic)
	if err != nil {
		if callback != nil {
			callback(nil, err)
		}
		return
	}
	p.SendAsync(ctx, msg, func(id pulsar.MessageID, _ *pulsar.ProducerMessage, err error) {
		if callback != nil {
			callback(id, err)
		}
	})
}

// Close 关闭全部缓存的生产者。
func (c *Context) Close() { c.producers.Close() }
