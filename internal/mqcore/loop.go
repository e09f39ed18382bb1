package mqcore

import (
	"context"
	"time"

	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

// ConsumeFunc 处理一条消息；返回错误时消费循环按退避策略等待后继续。
type ConsumeFunc func(ctx context.Context) error

// LoopOption 消费循环选项。
type LoopOption func(*loopOptions)

type loopOptions struct {
	backoff xretry.BackoffPolicy
	onError func(err error)
	budget  *Budget
}

// WithBackoff 设置失败后的退避，默认 xretry.NewExponentialBackoff()。
func WithBackoff(b xretry.BackoffPolicy) LoopOption {
	return func(o *loopOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithOnError 设置失败回调。
func WithOnError(f func(err error)) LoopOption {
	return func(o *loopOptions) { o.onError = f }
}

// WithBudget 成功处理的消息达到预算后正常返回。
func WithBudget(b *Budget) LoopOption {
	return func(o *loopOptions) { o.budget = b }
}

// RunConsumeLoop 反复调用 consume，直到 ctx 取消或预算耗尽。
// ctx 取消时返回 ctx.Err()，预算耗尽时返回 nil。
func RunConsumeLoop(ctx context.Context, consume ConsumeFunc, opts ...LoopOption) error {
	if consume == nil {
		return ErrNilHandler
	}
	o := &loopOptions{backoff: xretry.NewExponentialBackoff()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	failures := 0
	for {
		if o.budget.Exhausted() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if o.onError != nil {
				o.onError(err)
			}
			t := time.NewTimer(o.backoff.NextDelay(failures))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			continue
		}
		failures = 0
		o.budget.Take()
	}
}
