package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

var (
	// ErrNilBreaker Breaker 为 nil。
	ErrNilBreaker = errors.New("xbreaker: nil breaker")
	// ErrNilRetryer Retryer 为 nil。
	ErrNilRetryer = errors.New("xbreaker: nil retryer")

	// ErrOpenState 熔断器处于打开状态。
	ErrOpenState = gobreaker.ErrOpenState
	// ErrTooManyRequests 半开状态下请求过多。
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// BreakerError 包装 gobreaker 的拒绝错误。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("breaker %s (%s): %v", e.Name, e.State, e.Err)
}

func (e *BreakerError) Unwrap() error { return e.Err }

// IsBreakerOpen 报告 err 是否由熔断拒绝产生。
func IsBreakerOpen(err error) bool {
	return errors.Is(err, ErrOpenState) || errors.Is(err, ErrTooManyRequests)
}

// wrapRejection 只包装熔断拒绝，业务错误原样返回。
// 拒绝错误同时标记为不可重试。
func wrapRejection(err error, name string, state State) error {
	if err == nil || !IsBreakerOpen(err) {
		return err
	}
	return xretry.NewPermanentError(&BreakerError{Err: err, Name: name, State: state})
}
