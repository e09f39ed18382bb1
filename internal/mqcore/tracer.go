package mqcore

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xworkshop/pkg/context/xctx"
)

// Tracer 在消息头（Pulsar properties、AMQP headers）中注入和提取追踪上下文。
type Tracer interface {
	Inject(ctx context.Context, headers map[string]string)
	Extract(headers map[string]string) context.Context
}

// NoopTracer 不传播追踪信息。
type NoopTracer struct{}

func (NoopTracer) Inject(context.Context, map[string]string) {}

func (NoopTracer) Extract(map[string]string) context.Context { return context.Background() }

// OTelTracer 使用 OpenTelemetry propagator（默认 TraceContext + Baggage）。
// 注入时若 ctx 里只有 xctx 的 trace/span ID，也会据此生成 traceparent；
// 提取后把 trace/span ID 同步回 xctx，日志可以直接带上。
type OTelTracer struct {
	propagator propagation.TextMapPropagator
}

// NewOTelTracer 创建 OTelTracer，propagator 为 nil 时使用默认值。
func NewOTelTracer(propagator propagation.TextMapPropagator) OTelTracer {
	if propagator == nil {
		propagator = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)
	}
	return OTelTracer{propagator: propagator}
}

func (t OTelTracer) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil || t.propagator == nil {
		return
	}
	t.propagator.Inject(spanContextFromXctx(ctx), propagation.MapCarrier(headers))
}

func (t OTelTracer) Extract(headers map[string]string) context.Context {
	ctx := context.Background()
	if headers == nil || t.propagator == nil {
		return ctx
	}
	ctx = t.propagator.Extract(ctx, propagation.MapCarrier(headers))
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}
	if c, err := xctx.WithTraceID(ctx, sc.TraceID().String()); err == nil {
		ctx = c
	}
	if c, err := xctx.WithSpanID(ctx, sc.SpanID().String()); err == nil {
		ctx = c
	}
	if c, err := xctx.WithTraceFlags(ctx, sc.TraceFlags().String()); err == nil {
		ctx = c
	}
	return ctx
}

func spanContextFromXctx(ctx context.Context) context.Context {
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(xctx.TraceID(ctx))
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(xctx.SpanID(ctx))
	if err != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

// MergeTraceContext 把 extracted 中的 trace/span/request ID 合并进 base，
// 保留 base 的取消语义。
func MergeTraceContext(base, extracted context.Context) context.Context {
	if extracted == nil {
		return base
	}
	if sc := trace.SpanContextFromContext(extracted); sc.IsValid() {
		base = trace.ContextWithRemoteSpanContext(base, sc)
	}
	if v := xctx.TraceID(extracted); v != "" {
		if c, err := xctx.WithTraceID(base, v); err == nil {
			base = c
		}
	}
	if v := xctx.SpanID(extracted); v != "" {
		if c, err := xctx.WithSpanID(base, v); err == nil {
			base = c
		}
	}
	if v := xctx.RequestID(extracted); v != "" {
		if c, err := xctx.WithRequestID(base, v); err == nil {
			base = c
		}
	}
	return base
}

var (
	_ Tracer = NoopTracer{}
	_ Tracer = OTelTracer{}
)
