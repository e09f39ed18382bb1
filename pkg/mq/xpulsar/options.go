package xpulsar

import (
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
)

// Tracer 在消息 properties 中传播追踪上下文。
type Tracer = mqcore.Tracer

// NoopTracer 不传播追踪信息。
type NoopTracer = mqcore.NoopTracer

// NewOTelTracer 创建 W3C TraceContext + Baggage 追踪器。
func NewOTelTracer() Tracer { return mqcore.NewOTelTracer(nil) }

// defaultHealthCheckTopic 使用 non-persistent，探测不留下持久化状态。
const defaultHealthCheckTopic = "non-persistent://public/default/__health_check__"

type clientOptions struct {
	base          *pulsar.ClientOptions
	tracer        Tracer
	observer      xmetrics.Observer
	connTimeout   time.Duration
	opTimeout     time.Duration
	auth          pulsar.Authentication
	tlsTrustCerts string
	tlsInsecure   bool
	tlsSet        bool
	registerer    prometheus.Registerer
	healthTimeout time.Duration
	healthTopic   string
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		tracer:        NoopTracer{},
		observer:      xmetrics.NoopObserver{},
		healthTimeout: 5 * time.Second,
		healthTopic:   defaultHealthCheckTopic,
	}
}

// Option 客户端选项。
type Option func(*clientOptions)

// WithBaseOptions 以 opts 为基础构建客户端，URL 由 NewClient 的参数覆盖。
func WithBaseOptions(opts pulsar.ClientOptions) Option {
	return func(o *clientOptions) { o.base = &opts }
}

// WithTracer 设置追踪器，默认 NoopTracer。
func WithTracer(tracer Tracer) Option {
	return func(o *clientOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithObserver 设置观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *clientOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithConnectionTimeout 设置连接超时。
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.connTimeout = d
		}
	}
}

// WithOperationTimeout 设置操作超时。
func WithOperationTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.opTimeout = d
		}
	}
}

// WithAuthentication 设置认证插件。
func WithAuthentication(auth pulsar.Authentication) Option {
	return func(o *clientOptions) { o.auth = auth }
}

// WithTLS 设置信任证书路径与是否跳过校验。
func WithTLS(trustCertsFilePath string, allowInsecure bool) Option {
	return func(o *clientOptions) {
		o.tlsTrustCerts = trustCertsFilePath
		o.tlsInsecure = allowInsecure
		o.tlsSet = true
	}
}

// WithMetricsRegisterer 把 pulsar 客户端自身的指标注册到 reg。
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) { o.registerer = reg }
}

// WithHealthTimeout 设置健康检查超时，默认 5s。
func WithHealthTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.healthTimeout = d
		}
	}
}

// WithHealthCheckTopic 设置健康检查使用的 topic。
// 启用 ACL 的集群需要配置为客户端有权限读取的 topic。
func WithHealthCheckTopic(topic string) Option {
	return func(o *clientOptions) {
		if topic != "" {
			o.healthTopic = topic
		}
	}
}

// buildClientOptions 合并基础配置和显式选项。
func buildClientOptions(url string, o *clientOptions) pulsar.ClientOptions {
	var co pulsar.ClientOptions
	if o.base != nil {
		co = *o.base
	}
	co.URL = url
	if o.connTimeout > 0 {
		co.ConnectionTimeout = o.connTimeout
	}
	if o.opTimeout > 0 {
		co.OperationTimeout = o.opTimeout
	}
	if o.auth != nil {
		co.Authentication = o.auth
	}
	if o.tlsSet {
		co.TLSTrustCertsFilePath = o.tlsTrustCerts
		co.TLSAllowInsecureConnection = o.tlsInsecure
	}
	if o.registerer != nil {
		co.MetricsRegisterer = o.registerer
	}
	return co
}
