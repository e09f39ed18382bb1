package xmetrics

import (
	"context"
	"time"
)

// Kind span 类型。
type Kind int

const (
	KindInternal Kind = iota
	KindClient
	KindProducer
	KindConsumer
)

// Status 操作结果状态。
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr 与实现无关的属性。
type Attr struct {
	Key   string
	Value any
}

func String(key, value string) Attr { return Attr{Key: key, Value: value} }

func Int64(key string, value int64) Attr { return Attr{Key: key, Value: value} }

func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

func Duration(key string, value time.Duration) Attr { return Attr{Key: key, Value: value} }

// SpanOptions 描述一次操作。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 操作结果，Status 为空时按 Err 推断。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 进行中的操作，End 只生效一次。
type Span interface {
	End(result Result)
}

// Observer 创建 Span。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不做任何事。
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	return ctx, NoopSpan{}
}

// NoopSpan 不做任何事。
type NoopSpan struct{}

func (NoopSpan) End(Result) {}

// Start 是 observer 为 nil 时安全的 observer.Start。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if observer == nil {
		return ctx, NoopSpan{}
	}
	newCtx, span := observer.Start(ctx, opts)
	if newCtx == nil {
		newCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return newCtx, span
}

func (r Result) status() Status {
	if r.Status != "" {
		return r.Status
	}
	if r.Err != nil {
		return StatusError
	}
	return StatusOK
}
