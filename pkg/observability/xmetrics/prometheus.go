package xmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xworkshop"

// Registry 进程级 Prometheus 注册表与 workshop 计数器。
type Registry struct {
	reg *prometheus.Registry

	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	functionRecords  *prometheus.CounterVec
}

// NewRegistry 创建注册表，附带 Go 运行时与进程指标。
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages published, by command, topic and result.",
		}, []string{"command", "topic", "result"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received, by command, topic and outcome (ack, nack, skip).",
		}, []string{"command", "topic", "outcome"}),
		functionRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_records_total",
			Help:      "Records processed by function runners, by function and result.",
		}, []string{"function", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.messagesSent,
		r.messagesReceived,
		r.functionRecords,
	)
	return r
}

// Registerer 供 pulsar.ClientOptions.MetricsRegisterer 使用。
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer 返回底层 Gatherer。
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler 返回 /metrics 处理器。
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Sent 记录一次发送。nil Registry 安全。
func (r *Registry) Sent(command, topic string, err error) {
	if r == nil {
		return
	}
	r.messagesSent.WithLabelValues(command, topic, resultLabel(err)).Inc()
}

// Received 记录一次接收，outcome 为 ack、nack 或 skip。nil Registry 安全。
func (r *Registry) Received(command, topic, outcome string) {
	if r == nil {
		return
	}
	r.messagesReceived.WithLabelValues(command, topic, outcome).Inc()
}

// FunctionRecord 记录函数处理一条记录。nil Registry 安全。
func (r *Registry) FunctionRecord(function string, err error) {
	if r == nil {
		return
	}
	r.functionRecords.WithLabelValues(function, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return string(StatusError)
	}
	return string(StatusOK)
}
