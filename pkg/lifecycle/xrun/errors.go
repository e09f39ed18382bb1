package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 所有 SignalError 都满足 errors.Is(err, ErrSignal)。
	ErrSignal = errors.New("received signal")
	// ErrNilFunc 服务函数为 nil。
	ErrNilFunc = errors.New("xrun: nil service func")
	// ErrNilServer HTTP server 为 nil。
	ErrNilServer = errors.New("xrun: nil server")
)

// SignalError 记录导致退出的信号。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received signal %v", e.Signal)
}

func (e *SignalError) Unwrap() error { return ErrSignal }
