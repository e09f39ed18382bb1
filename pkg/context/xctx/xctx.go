// Package xctx 管理 context 中的追踪与运行标识字段。
//
// 追踪字段（trace_id / span_id / request_id / trace_flags）遵循 W3C Trace
// Context 的 ID 长度，由 internal/mqcore 在消息头与 OTel SpanContext 之间同步；
// 运行字段（command / client_name）标识当前 workshop 子命令与客户端名称。
// 所有字段都可以通过 LogAttrs 输出为 slog 属性，xlog 会自动附加。
package xctx

import (
	"context"
	"errors"
)

// contextKey 是包私有的 context key 类型。
type contextKey string

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrMissingTraceID trace_id 缺失。
	ErrMissingTraceID = errors.New("xctx: missing trace_id")
)

// 日志属性 key，遵循 OpenTelemetry 的下划线风格。
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyRequestID  = "request_id"
	KeyTraceFlags = "trace_flags"
	KeyCommand    = "command"
	KeyClientName = "client_name"
)

const (
	keyTraceID    = contextKey("xctx:trace_id")
	keySpanID     = contextKey("xctx:span_id")
	keyRequestID  = contextKey("xctx:request_id")
	keyTraceFlags = contextKey("xctx:trace_flags")
	keyCommand    = contextKey("xctx:command")
	keyClientName = contextKey("xctx:client_name")
)

func withValue(ctx context.Context, key contextKey, value string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, key, value), nil
}

func value(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
