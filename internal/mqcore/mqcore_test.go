package mqcore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/goleak"

	"github.com/omeyang/xworkshop/pkg/context/xctx"
	"github.com/omeyang/xworkshop/pkg/resilience/xretry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	testSpanID  = "00f067aa0ba902b7"
)

func TestOTelTracer_RoundTrip(t *testing.T) {
	tracer := NewOTelTracer(nil)

	ctx, err := xctx.WithTraceID(context.Background(), testTraceID)
	require.NoError(t, err)
	ctx, err = xctx.WithSpanID(ctx, testSpanID)
	require.NoError(t, err)

	headers := map[string]string{}
	tracer.Inject(ctx, headers)
	assert.Equal(t, "00-"+testTraceID+"-"+testSpanID+"-01", headers["traceparent"])

	out := tracer.Extract(headers)
	assert.Equal(t, testTraceID, xctx.TraceID(out))
	assert.Equal(t, testSpanID, xctx.SpanID(out))
	assert.True(t, trace.SpanContextFromContext(out).IsRemote())
}

func TestOTelTracer_Empty(t *testing.T) {
	tracer := NewOTelTracer(nil)

	t.Run("无追踪信息不注入", func(t *testing.T) {
		headers := map[string]string{}
		tracer.Inject(context.Background(), headers)
		assert.NotContains(t, headers, "traceparent")
	})

	t.Run("nil headers", func(t *testing.T) {
		assert.NotPanics(t, func() { tracer.Inject(context.Background(), nil) })
		assert.Empty(t, xctx.TraceID(tracer.Extract(nil)))
	})

	t.Run("非法 traceparent", func(t *testing.T) {
		out := tracer.Extract(map[string]string{"traceparent": "garbage"})
		assert.Empty(t, xctx.TraceID(out))
	})
}

func TestNoopTracer(t *testing.T) {
	headers := map[string]string{}
	NoopTracer{}.Inject(context.Background(), headers)
	assert.Empty(t, headers)
	assert.NotNil(t, NoopTracer{}.Extract(headers))
}

func TestMergeTraceContext(t *testing.T) {
	extracted := NewOTelTracer(nil).Extract(map[string]string{
		"traceparent": "00-" + testTraceID + "-" + testSpanID + "-01",
	})
	extracted, err := xctx.WithRequestID(extracted, "req-1")
	require.NoError(t, err)

	base, cancel := context.WithCancel(context.Background())
	merged := MergeTraceContext(base, extracted)
	assert.Equal(t, testTraceID, xctx.TraceID(merged))
	assert.Equal(t, "req-1", xctx.RequestID(merged))
	assert.True(t, trace.SpanContextFromContext(merged).IsValid())

	cancel()
	assert.ErrorIs(t, merged.Err(), context.Canceled)

	assert.Equal(t, base, MergeTraceContext(base, nil))
}

func TestBudget(t *testing.T) {
	t.Run("有限", func(t *testing.T) {
		b := NewBudget(2)
		assert.False(t, b.Exhausted())
		assert.True(t, b.Take())
		assert.True(t, b.Take())
		assert.True(t, b.Exhausted())
		assert.False(t, b.Take())
		assert.Equal(t, int64(2), b.Limit())
	})

	t.Run("不限", func(t *testing.T) {
		b := NewBudget(-5)
		assert.Equal(t, int64(Unlimited), b.Limit())
		for range 100 {
			b.Take()
		}
		assert.False(t, b.Exhausted())
	})

	t.Run("nil", func(t *testing.T) {
		var b *Budget
		assert.True(t, b.Take())
		assert.False(t, b.Exhausted())
		assert.Zero(t, b.Used())
	})

	t.Run("零", func(t *testing.T) {
		assert.True(t, NewBudget(0).Exhausted())
	})
}

func TestRunConsumeLoop(t *testing.T) {
	t.Run("预算耗尽后返回 nil", func(t *testing.T) {
		var calls atomic.Int32
		err := RunConsumeLoop(context.Background(), func(context.Context) error {
			calls.Add(1)
			return nil
		}, WithBudget(NewBudget(3)))
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("失败后退避重试", func(t *testing.T) {
		var calls atomic.Int32
		var errs []error
		err := RunConsumeLoop(context.Background(), func(context.Context) error {
			if calls.Add(1) <= 2 {
				return errors.New("boom")
			}
			return nil
		},
			WithBudget(NewBudget(1)),
			WithBackoff(xretry.NewFixedBackoff(time.Millisecond)),
			WithOnError(func(err error) { errs = append(errs, err) }),
		)
		require.NoError(t, err)
		assert.Len(t, errs, 2)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("ctx 取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- RunConsumeLoop(ctx, func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
		}()
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("循环未退出")
		}
	})

	t.Run("退避等待期间取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := RunConsumeLoop(ctx, func(context.Context) error {
			cancel()
			return errors.New("boom")
		}, WithBackoff(xretry.NewFixedBackoff(time.Hour)))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("nil consume", func(t *testing.T) {
		assert.ErrorIs(t, RunConsumeLoop(context.Background(), nil), ErrNilHandler)
	})
}
