package xretry

import (
	"math"
	"math/rand/v2"
	"time"
)

// FixedBackoff 固定间隔。
type FixedBackoff struct {
	delay time.Duration
}

// NewFixedBackoff 创建固定间隔退避，负数按 0 处理。
func NewFixedBackoff(delay time.Duration) *FixedBackoff {
	return &FixedBackoff{delay: max(delay, 0)}
}

func (b *FixedBackoff) NextDelay(int) time.Duration { return b.delay }

// ExponentialBackoff 指数退避：initial * multiplier^(attempt-1)，上限 max，可带抖动。
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
}

// ExponentialBackoffOption 指数退避选项。
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay 设置首次延迟，默认 100ms。0 表示不等待，负数忽略。
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d >= 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay 设置延迟上限，默认 30s。负数忽略。
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d >= 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier 设置倍率，必须 >= 1，默认 2。
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter 设置抖动比例，截断到 [0, 1]，默认 0.1。
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitter = min(max(j, 0), 1)
	}
}

// NewExponentialBackoff 创建指数退避。
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		jitter:       0.1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

// InitialDelay 返回首次延迟。
func (b *ExponentialBackoff) InitialDelay() time.Duration { return b.initialDelay }

// MaxDelay 返回延迟上限。
func (b *ExponentialBackoff) MaxDelay() time.Duration { return b.maxDelay }

// Multiplier 返回倍率。
func (b *ExponentialBackoff) Multiplier() float64 { return b.multiplier }

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	if b.jitter > 0 {
		delay *= 1 + (rand.Float64()*2-1)*b.jitter //nolint:gosec // 抖动不需要密码学随机
	}
	if math.IsNaN(delay) || math.IsInf(delay, 0) || delay < 0 || delay >= float64(b.maxDelay) {
		return b.maxDelay
	}
	return time.Duration(delay)
}

var (
	_ BackoffPolicy = (*FixedBackoff)(nil)
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
)
