package xctx

import (
	"context"
	"log/slog"
)

// WithCommand 将当前 workshop 子命令名注入 context。
func WithCommand(ctx context.Context, command string) (context.Context, error) {
	return withValue(ctx, keyCommand, command)
}

// Command 从 context 提取子命令名。
func Command(ctx context.Context) string {
	return value(ctx, keyCommand)
}

// WithClientName 将客户端名称（如 "[P]<uuid>"）注入 context。
func WithClientName(ctx context.Context, name string) (context.Context, error) {
	return withValue(ctx, keyClientName, name)
}

// ClientName 从 context 提取客户端名称。
func ClientName(ctx context.Context) string {
	return value(ctx, keyClientName)
}

// AppendLogAttrs 将 context 中的非空字段追加到 attrs。
func AppendLogAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	fields := [...]struct {
		key string
		ck  contextKey
	}{
		{KeyCommand, keyCommand},
		{KeyClientName, keyClientName},
		{KeyTraceID, keyTraceID},
		{KeySpanID, keySpanID},
		{KeyRequestID, keyRequestID},
		{KeyTraceFlags, keyTraceFlags},
	}
	for _, f := range fields {
		if v := value(ctx, f.ck); v != "" {
			attrs = append(attrs, slog.String(f.key, v))
		}
	}
	return attrs
}

// LogAttrs 返回 context 中所有非空字段的 slog 属性，全部为空时返回 nil。
func LogAttrs(ctx context.Context) []slog.Attr {
	attrs := AppendLogAttrs(nil, ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
