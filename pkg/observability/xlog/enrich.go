package xlog

import (
	"context"
	"log/slog"

	"github.com/omeyang/xworkshop/pkg/context/xctx"
)

// EnrichHandler 把 context 中的 xctx 字段追加到日志记录。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 包装 base。
func NewEnrichHandler(base slog.Handler) *EnrichHandler {
	return &EnrichHandler{base: base}
}

func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [6]slog.Attr
	if attrs := xctx.AppendLogAttrs(buf[:0], ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
