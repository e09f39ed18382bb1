package xid

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/sony/sonyflake/v2"
)

var (
	// ErrNilGenerator Generator 为 nil。
	ErrNilGenerator = errors.New("xid: nil generator")
	// ErrInvalidConfig 配置无效。
	ErrInvalidConfig = errors.New("xid: invalid config")
	// ErrOverTimeLimit 时间位溢出。
	ErrOverTimeLimit = errors.New("xid: time component overflow")
	// ErrInvalidID 字符串不是合法 ID。
	ErrInvalidID = errors.New("xid: invalid id")
)

// Option 生成器选项。
type Option func(*options)

type options struct {
	machineID func() (uint16, error)
}

// WithMachineID 自定义机器 ID 来源。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.machineID = fn
		}
	}
}

// Generator 基于 sonyflake 的 ID 生成器，并发安全。
type Generator struct {
	sf *sonyflake.Sonyflake
}

// NewGenerator 创建生成器。
func NewGenerator(opts ...Option) (*Generator, error) {
	o := &options{machineID: DefaultMachineID}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := o.machineID()
			return int(id), err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Generator{sf: sf}, nil
}

// New 生成一个 ID。
func (g *Generator) New() (int64, error) {
	if g == nil || g.sf == nil {
		return 0, ErrNilGenerator
	}
	id, err := g.sf.NextID()
	if err != nil {
		if errors.Is(err, sonyflake.ErrOverTimeLimit) {
			return 0, fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
		}
		return 0, err
	}
	return id, nil
}

// NewString 生成 base36 编码的 ID。
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// Parse 解析 NewString 生成的字符串。
func Parse(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 36, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

var (
	defaultOnce sync.Once
	defaultGen  *Generator
	defaultErr  error
)

// Default 返回进程级共享生成器，首次调用时初始化。
func Default() (*Generator, error) {
	defaultOnce.Do(func() {
		defaultGen, defaultErr = NewGenerator()
	})
	return defaultGen, defaultErr
}

// NewString 使用 Default 生成 base36 ID。
func NewString() (string, error) {
	g, err := Default()
	if err != nil {
		return "", err
	}
	return g.NewString()
}
