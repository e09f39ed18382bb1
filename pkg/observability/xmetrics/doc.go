// Package xmetrics 提供可观测性抽象与两种实现。
//
// Observer/Span 是 mq 组件使用的统一埋点接口，NewOTelObserver 基于
// OpenTelemetry 同时产生 span 与 operation 计数/耗时指标。
//
// Registry 是 Prometheus 侧的进程级注册表：workshop 计数器
// （messages_sent_total、messages_received_total、function_records_total）
// 与 Pulsar 客户端自带指标都注册在这里，由 Handler 通过 --metrics-addr 暴露。
package xmetrics
