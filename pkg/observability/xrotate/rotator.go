package xrotate

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// ErrEmptyFilename 未指定文件名。
	ErrEmptyFilename = errors.New("xrotate: filename is required")
	// ErrInvalidMaxSize 单文件大小必须为正。
	ErrInvalidMaxSize = errors.New("xrotate: invalid MaxSizeMB")
	// ErrInvalidMaxBackups 保留数量不能为负。
	ErrInvalidMaxBackups = errors.New("xrotate: invalid MaxBackups")
	// ErrInvalidMaxAge 保留天数不能为负。
	ErrInvalidMaxAge = errors.New("xrotate: invalid MaxAgeDays")
	// ErrClosed 已关闭。
	ErrClosed = errors.New("xrotate: rotator is closed")
)

// Rotator 可滚动的日志写入器。
type Rotator interface {
	io.WriteCloser
	// Rotate 立即切换到新文件。
	Rotate() error
}

type config struct {
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	compress   bool
	localTime  bool
}

// Option 滚动选项。
type Option func(*config)

// WithMaxSize 单个文件上限（MB），默认 100。
func WithMaxSize(mb int) Option { return func(c *config) { c.maxSizeMB = mb } }

// WithMaxBackups 保留的旧文件数量，0 表示不限，默认 7。
func WithMaxBackups(n int) Option { return func(c *config) { c.maxBackups = n } }

// WithMaxAge 旧文件保留天数，0 表示不限，默认 30。
func WithMaxAge(days int) Option { return func(c *config) { c.maxAgeDays = days } }

// WithCompress 是否 gzip 压缩旧文件，默认 true。
func WithCompress(b bool) Option { return func(c *config) { c.compress = b } }

// WithLocalTime 旧文件名使用本地时间，默认 true。
func WithLocalTime(b bool) Option { return func(c *config) { c.localTime = b } }

type lumberjackRotator struct {
	logger *lumberjack.Logger
	closed atomic.Bool
}

// NewLumberjack 创建基于 lumberjack 的 Rotator，目录不存在时自动创建。
func NewLumberjack(filename string, opts ...Option) (Rotator, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}
	cfg := &config{maxSizeMB: 100, maxBackups: 7, maxAgeDays: 30, compress: true, localTime: true}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	switch {
	case cfg.maxSizeMB <= 0:
		return nil, ErrInvalidMaxSize
	case cfg.maxBackups < 0:
		return nil, ErrInvalidMaxBackups
	case cfg.maxAgeDays < 0:
		return nil, ErrInvalidMaxAge
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return nil, err
	}
	return &lumberjackRotator{logger: &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.maxSizeMB,
		MaxBackups: cfg.maxBackups,
		MaxAge:     cfg.maxAgeDays,
		Compress:   cfg.compress,
		LocalTime:  cfg.localTime,
	}}, nil
}

func (r *lumberjackRotator) Write(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	return r.logger.Write(p)
}

func (r *lumberjackRotator) Rotate() error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.logger.Rotate()
}

func (r *lumberjackRotator) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.logger.Close()
}
