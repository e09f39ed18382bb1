package xctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// W3C Trace Context 的 ID 字节长度。
const (
	TraceIDSize = 16
	SpanIDSize  = 8
)

// WithTraceID 将 trace ID 注入 context。
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	return withValue(ctx, keyTraceID, traceID)
}

// TraceID 从 context 提取 trace ID，不存在返回空字符串。
func TraceID(ctx context.Context) string {
	return value(ctx, keyTraceID)
}

// RequireTraceID 从 context 获取 trace ID，缺失时返回 ErrMissingTraceID。
func RequireTraceID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := TraceID(ctx)
	if v == "" {
		return "", ErrMissingTraceID
	}
	return v, nil
}

// WithSpanID 将 span ID 注入 context。
func WithSpanID(ctx context.Context, spanID string) (context.Context, error) {
	return withValue(ctx, keySpanID, spanID)
}

// SpanID 从 context 提取 span ID。
func SpanID(ctx context.Context) string {
	return value(ctx, keySpanID)
}

// WithRequestID 将 request ID 注入 context。
func WithRequestID(ctx context.Context, requestID string) (context.Context, error) {
	return withValue(ctx, keyRequestID, requestID)
}

// RequestID 从 context 提取 request ID。
func RequestID(ctx context.Context) string {
	return value(ctx, keyRequestID)
}

// WithTraceFlags 将 W3C trace flags（如 "01"）注入 context。
func WithTraceFlags(ctx context.Context, flags string) (context.Context, error) {
	return withValue(ctx, keyTraceFlags, flags)
}

// TraceFlags 从 context 提取 trace flags。
func TraceFlags(ctx context.Context) string {
	return value(ctx, keyTraceFlags)
}

// GenerateTraceID 生成 32 位十六进制 trace ID。
func GenerateTraceID() string {
	return randomHex(TraceIDSize)
}

// GenerateSpanID 生成 16 位十六进制 span ID。
func GenerateSpanID() string {
	return randomHex(SpanIDSize)
}

// GenerateRequestID 生成 request ID，格式与 trace ID 一致。
func GenerateRequestID() string {
	return randomHex(TraceIDSize)
}

// EnsureRequestID 确保 context 中存在 request ID。
func EnsureRequestID(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if RequestID(ctx) != "" {
		return ctx, nil
	}
	return context.WithValue(ctx, keyRequestID, GenerateRequestID()), nil
}

// EnsureTrace 确保 context 中存在 trace ID 与 span ID，缺失时生成。
// 已存在的字段保持不变。
func EnsureTrace(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if TraceID(ctx) == "" {
		ctx = context.WithValue(ctx, keyTraceID, GenerateTraceID())
	}
	if SpanID(ctx) == "" {
		ctx = context.WithValue(ctx, keySpanID, GenerateSpanID())
	}
	return ctx, nil
}

// randomHex 生成 n 字节随机数的十六进制表示。
// W3C 规范要求 ID 不能全零，极小概率出现时重新生成。
func randomHex(n int) string {
	buf := make([]byte, n)
	for {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand 在受支持平台上不会失败
			panic("xctx: crypto/rand failed: " + err.Error())
		}
		for _, b := range buf {
			if b != 0 {
				return hex.EncodeToString(buf)
			}
		}
	}
}
