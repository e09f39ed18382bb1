package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/omeyang/xworkshop/pkg/observability/xrotate"
)

// Builder 链式构建 Logger，错误延迟到 Build 返回。
type Builder struct {
	output    io.Writer
	levelVar  *slog.LevelVar
	format    string
	addSource bool
	enrich    bool
	rotator   xrotate.Rotator
	attrs     []slog.Attr
	err       error
}

// New 创建 Builder：stderr、info、text、启用 context 字段注入。
func New() *Builder {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	return &Builder{output: os.Stderr, levelVar: lv, format: "text", enrich: true}
}

// SetOutput 设置输出。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置级别。
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 解析并设置级别。
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json。
func (b *Builder) SetFormat(format string) *Builder {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = f
	default:
		b.err = errors.Join(b.err, fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetAddSource 是否记录调用位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 context 注入 xctx 字段。
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enrich = enable
	return b
}

// SetRotation 输出到滚动文件，filename 为空时忽略。
func (b *Builder) SetRotation(filename string, opts ...xrotate.Option) *Builder {
	if filename == "" {
		return b
	}
	r, err := xrotate.NewLumberjack(filename, opts...)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	b.rotator = r
	b.output = r
	return b
}

// SetAttrs 设置每条日志都携带的固定属性。
func (b *Builder) SetAttrs(attrs ...slog.Attr) *Builder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// Build 构建 Logger，cleanup 用于关闭滚动文件，可重复调用。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		if b.rotator != nil {
			_ = b.rotator.Close()
		}
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: b.levelVar, AddSource: b.addSource}
	var h slog.Handler
	if b.format == "json" {
		h = slog.NewJSONHandler(b.output, opts)
	} else {
		h = slog.NewTextHandler(b.output, opts)
	}
	if b.enrich {
		h = NewEnrichHandler(h)
	}
	if len(b.attrs) > 0 {
		h = h.WithAttrs(b.attrs)
	}

	var once sync.Once
	rotator := b.rotator
	cleanup := func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
	return &xlogger{handler: h, levelVar: b.levelVar, addSource: b.addSource}, cleanup, nil
}
