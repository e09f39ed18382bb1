// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展
//   - xmetrics: Prometheus 指标与 OpenTelemetry span
//   - xrotate: 日志文件轮转
package observability
