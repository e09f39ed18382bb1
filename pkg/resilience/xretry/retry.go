package xretry

import (
	"context"
	"time"
)

// RetryPolicy 判断失败后是否继续重试。
type RetryPolicy interface {
	// MaxAttempts 返回最大尝试次数（包含首次），0 表示不限次数。
	MaxAttempts() int

	// ShouldRetry 在第 attempt 次（从 1 开始）失败后调用。
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 计算第 attempt 次（从 1 开始）重试前的等待时间。
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// FixedRetryPolicy 固定次数重试。
type FixedRetryPolicy struct {
	maxAttempts int
}

// NewFixedRetry 创建固定次数重试策略，maxAttempts 最小为 1。
func NewFixedRetry(maxAttempts int) *FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts}
}

func (p *FixedRetryPolicy) MaxAttempts() int { return p.maxAttempts }

func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	if ctx.Err() != nil || attempt >= p.maxAttempts {
		return false
	}
	return IsRetryable(err)
}

// UntilCanceledPolicy 一直重试直到 ctx 取消或遇到永久性错误。
// 用于后台重连这类"连上为止"的场景。
type UntilCanceledPolicy struct{}

// NewUntilCanceled 创建不限次数的重试策略。
func NewUntilCanceled() *UntilCanceledPolicy { return &UntilCanceledPolicy{} }

func (p *UntilCanceledPolicy) MaxAttempts() int { return 0 }

func (p *UntilCanceledPolicy) ShouldRetry(ctx context.Context, _ int, err error) bool {
	return ctx.Err() == nil && IsRetryable(err)
}

var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = (*UntilCanceledPolicy)(nil)
)
