package xlog

import (
	"context"
	"log/slog"
)

// Logger 结构化日志接口。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回附加了固定属性的子 Logger。
	With(attrs ...slog.Attr) Logger
	// WithGroup 返回把后续属性放入 name 分组的子 Logger。
	WithGroup(name string) Logger
}

// Leveler 动态级别控制。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 同时支持日志与级别控制。
type LoggerWithLevel interface {
	Logger
	Leveler
}
