package xretry

import "errors"

var (
	// ErrNilRetryer Retryer 为 nil。
	ErrNilRetryer = errors.New("xretry: nil retryer")
	// ErrNilFunc 待执行函数为 nil。
	ErrNilFunc = errors.New("xretry: nil func")
)

// PermanentError 不应重试的错误。
type PermanentError struct {
	Err error
}

// NewPermanentError 包装为永久性错误，nil 返回 nil。
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsRetryable 报告 err 是否值得重试。nil 与 PermanentError 返回 false。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	return !errors.As(err, &pe)
}
