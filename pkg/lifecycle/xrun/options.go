package xrun

import (
	"log/slog"
	"os"
	"syscall"
)

// Option 配置 Group 与 Run。
type Option func(*groupOptions)

type groupOptions struct {
	logger          *slog.Logger
	name            string
	signals         []os.Signal
	signalCh        <-chan os.Signal
	noSignalHandler bool
}

func defaultOptions() *groupOptions {
	return &groupOptions{
		logger:  slog.Default(),
		name:    "xrun",
		signals: DefaultSignals(),
	}
}

// DefaultSignals 返回默认监听的信号。
func DefaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(o *groupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 Group 名称，出现在日志中。
func WithName(name string) Option {
	return func(o *groupOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 替换监听的信号集合。
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal(nil), signals...)
	return func(o *groupOptions) {
		if len(copied) > 0 {
			o.signals = copied
		}
	}
}

// WithSignalChannel 从给定 channel 接收信号而不是调用 signal.Notify。
func WithSignalChannel(ch <-chan os.Signal) Option {
	return func(o *groupOptions) {
		o.signalCh = ch
	}
}

// WithoutSignalHandler 不启动信号监听。
func WithoutSignalHandler() Option {
	return func(o *groupOptions) {
		o.noSignalHandler = true
	}
}
