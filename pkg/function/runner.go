package function

import (
	"context"
	"errors"
	"strings"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// Config 函数运行配置。
type Config struct {
	// Name 函数名，同时作为默认订阅名。
	Name string
	// Inputs 输入 topic。
	Inputs []string
	// Output 输出 topic，为空时丢弃 Output。
	Output string
	// Subscription 订阅名，为空时使用 Name。
	Subscription string
	// UserConfig 初始用户配置。
	UserConfig map[string]string
}

func (c Config) subscription() string {
	if c.Subscription != "" {
		return c.Subscription
	}
	return c.Name
}

// RunnerOption Runner 选项。
type RunnerOption func(*Runner)

// WithConf 从配置文件映射 consumer/producer 选项。
func WithConf(conf *pulsarconf.Conf) RunnerOption {
	return func(r *Runner) {
		if conf != nil {
			r.conf = conf
		}
	}
}

// WithMetrics 记录 function_records_total。
func WithMetrics(reg *xmetrics.Registry) RunnerOption {
	return func(r *Runner) { r.metrics = reg }
}

// WithLogger 默认 xlog.Default()。
func WithLogger(l xlog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithErrorBackoff 处理失败后的等待策略。
func WithErrorBackoff(b xretry.BackoffPolicy) RunnerOption {
	return func(r *Runner) { r.backoff = b }
}

// Runner 订阅输入 topic 并驱动函数。
type Runner struct {
	client  xpulsar.Client
	fn      Function
	cfg     Config
	conf    *pulsarconf.Conf
	metrics *xmetrics.Registry
	logger  xlog.Logger
	backoff xretry.BackoffPolicy

	fctx     *Context
	consumer *xpulsar.TracingConsumer
}

// NewRunner 创建 Runner 并订阅输入 topic（Shared 订阅）。
func NewRunner(client xpulsar.Client, fn Function, cfg Config, opts ...RunnerOption) (*Runner, error) {
	switch {
	case client == nil:
		return nil, ErrNilClient
	case fn == nil:
		return nil, ErrNilFunction
	case len(cfg.Inputs) == 0:
		return nil, ErrNoInputs
	}
	r := &Runner{client: client, fn: fn, cfg: cfg, logger: xlog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.conf == nil {
		conf, err := pulsarconf.FromMap(nil)
		if err != nil {
			return nil, err
		}
		r.conf = conf
	}

	fctx, err := newContext(client, cfg, r.conf, r.logger)
	if err != nil {
		return nil, err
	}
	consumerOpts := r.conf.ConsumerOptions(cfg.Inputs, "", cfg.subscription(), pulsar.Shared)
	consumer, err := xpulsar.NewTracingConsumer(client, consumerOpts)
	if err != nil {
		fctx.Close()
		return nil, err
	}
	r.fctx = fctx
	r.consumer = consumer
	return r, nil
}

// Context 返回函数上下文。
func (r *Runner) Context() *Context { return r.fctx }

// Run 处理消息直到 ctx 结束（返回 nil）或处理完 budget 条记录。
// budget 为 nil 表示不限。
func (r *Runner) Run(ctx context.Context, budget *mqcore.Budget) error {
	r.logger.Info(ctx, "function started",
		xlog.Operation(r.cfg.Name),
		xlog.Topic(strings.Join(r.cfg.Inputs, ",")),
		xlog.Subscription(r.cfg.subscription()))

	err := r.consumer.ConsumeLoop(ctx, r.handle, budget, r.backoff, func(err error) {
		r.logger.Warn(ctx, "function failed, message nacked", xlog.Operation(r.cfg.Name), xlog.Err(err))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Runner) handle(ctx context.Context, msg pulsar.Message) (err error) {
	defer func() { r.metrics.FunctionRecord(r.cfg.Name, err) }()
	out, err := r.fn.Process(ctx, r.fctx, recordOf(msg))
	if err != nil || out == nil {
		return err
	}
	topic := out.Topic
	if topic == "" {
		topic = r.cfg.Output
	}
	if topic == "" {
		return nil
	}
	_, err = r.fctx.Publish(ctx, topic, out.message())
	return err
}

// Close 关闭订阅与生产者缓存。
func (r *Runner) Close() {
	r.consumer.Close()
	r.fctx.Close()
}
