package xbreaker

import (
	"context"

	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// BreakerRetryer 每次重试都经过熔断器；熔断打开时立即停止重试。
type BreakerRetryer struct {
	breaker *Breaker
	retryer *xretry.Retryer
}

// NewBreakerRetryer 组合熔断器与重试器。
func NewBreakerRetryer(b *Breaker, r *xretry.Retryer) (*BreakerRetryer, error) {
	if b == nil {
		return nil, ErrNilBreaker
	}
	if r == nil {
		return nil, ErrNilRetryer
	}
	return &BreakerRetryer{breaker: b, retryer: r}, nil
}

// Breaker 返回内部熔断器。
func (br *BreakerRetryer) Breaker() *Breaker { return br.breaker }

// Do 执行 fn。
func (br *BreakerRetryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return br.retryer.Do(ctx, func(ctx context.Context) error {
		return br.breaker.Do(ctx, func() error { return fn(ctx) })
	})
}
