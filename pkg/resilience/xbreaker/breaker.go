package xbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

type (
	// State 熔断器状态。
	State = gobreaker.State
	// Counts 请求计数。
	Counts = gobreaker.Counts
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Breaker 熔断器。
type Breaker struct {
	name          string
	threshold     uint32
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	isSuccessful  func(error) bool
	onStateChange func(name string, from, to State)

	cb *gobreaker.CircuitBreaker[any]
}

// Option 熔断器选项。
type Option func(*Breaker)

// WithFailureThreshold 连续失败多少次后打开，默认 5。
func WithFailureThreshold(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithTimeout 打开状态持续多久后进入半开，默认 60s。
func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval 关闭状态下清零计数的周期，0 表示不清零。
func WithInterval(d time.Duration) Option {
	return func(b *Breaker) {
		if d >= 0 {
			b.interval = d
		}
	}
}

// WithMaxRequests 半开状态允许的探测请求数，默认 1。
func WithMaxRequests(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithIsSuccessful 自定义成功判定，例如把 "not found" 视为成功。
func WithIsSuccessful(f func(error) bool) Option {
	return func(b *Breaker) { b.isSuccessful = f }
}

// WithOnStateChange 设置状态变化回调。
func WithOnStateChange(f func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = f }
}

// NewBreaker 创建熔断器。
func NewBreaker(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		threshold:   5,
		timeout:     60 * time.Second,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	threshold := b.threshold
	st := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful:  b.isSuccessful,
		OnStateChange: b.onStateChange,
	}
	b.cb = gobreaker.NewCircuitBreaker[any](st)
	return b
}

// Name 返回熔断器名称。
func (b *Breaker) Name() string { return b.name }

// State 返回当前状态。
func (b *Breaker) State() State { return b.cb.State() }

// Counts 返回当前计数。
func (b *Breaker) Counts() Counts { return b.cb.Counts() }

// Do 在熔断保护下执行 fn。ctx 只做入口检查。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return wrapRejection(err, b.name, b.State())
}

// Execute 是 Do 的带返回值版本。
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if b == nil {
		return zero, ErrNilBreaker
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, wrapRejection(err, b.name, b.State())
	}
	out, _ := v.(T)
	return out, nil
}
