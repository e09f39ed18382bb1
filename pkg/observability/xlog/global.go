package xlog

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var global atomic.Pointer[LoggerWithLevel]

// Default 返回全局 Logger，未设置时懒加载一个 stderr text Logger。
func Default() LoggerWithLevel {
	if l := global.Load(); l != nil {
		return *l
	}
	l, _, _ := New().Build()
	global.CompareAndSwap(nil, &l)
	return *global.Load()
}

// SetDefault 替换全局 Logger，同时把 slog.Default 指向同一 Handler。nil 被忽略。
func SetDefault(l LoggerWithLevel) {
	if l == nil {
		return
	}
	global.Store(&l)
	slog.SetDefault(Slog(l))
}

func Debug(ctx context.Context, msg string, attrs ...slog.Attr) { Default().Debug(ctx, msg, attrs...) }

func Info(ctx context.Context, msg string, attrs ...slog.Attr) { Default().Info(ctx, msg, attrs...) }

func Warn(ctx context.Context, msg string, attrs ...slog.Attr) { Default().Warn(ctx, msg, attrs...) }

func Error(ctx context.Context, msg string, attrs ...slog.Attr) { Default().Error(ctx, msg, attrs...) }
