package xretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fastRetryer(attempts int, opts ...RetryerOption) *Retryer {
	base := []RetryerOption{
		WithRetryPolicy(NewFixedRetry(attempts)),
		WithBackoffPolicy(NewFixedBackoff(time.Millisecond)),
	}
	return NewRetryer(append(base, opts...)...)
}

func TestRetryer_Do(t *testing.T) {
	t.Run("最终成功", func(t *testing.T) {
		calls := 0
		err := fastRetryer(5).Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("次数耗尽", func(t *testing.T) {
		calls := 0
		var retried []int
		err := fastRetryer(3, WithOnRetry(func(attempt int, _ error) {
			retried = append(retried, attempt)
		})).Do(context.Background(), func(context.Context) error {
			calls++
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("永久性错误不重试", func(t *testing.T) {
		calls := 0
		err := fastRetryer(5).Do(context.Background(), func(context.Context) error {
			calls++
			return NewPermanentError(errBoom)
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, calls)
	})

	t.Run("ctx 取消后停止", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		r := NewRetryer(
			WithRetryPolicy(NewUntilCanceled()),
			WithBackoffPolicy(NewFixedBackoff(time.Millisecond)),
		)
		err := r.Do(ctx, func(context.Context) error {
			calls++
			if calls == 3 {
				cancel()
			}
			return errBoom
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("nil 参数", func(t *testing.T) {
		var r *Retryer
		assert.ErrorIs(t, r.Do(context.Background(), func(context.Context) error { return nil }), ErrNilRetryer)
		assert.ErrorIs(t, NewRetryer().Do(context.Background(), nil), ErrNilFunc)
	})
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), fastRetryer(3), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errBoom
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = DoWithResult[int](context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilRetryer)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errBoom))
	assert.False(t, IsRetryable(NewPermanentError(errBoom)))
	assert.False(t, IsRetryable(errors.Join(errors.New("x"), NewPermanentError(errBoom))))
	assert.NoError(t, NewPermanentError(nil))
}
