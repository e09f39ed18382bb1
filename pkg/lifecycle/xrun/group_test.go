package xrun

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errService = errors.New("service failed")

func TestRun(t *testing.T) {
	t.Run("全部正常结束", func(t *testing.T) {
		var n atomic.Int32
		err := Run(context.Background(),
			func(context.Context) error { n.Add(1); return nil },
			func(context.Context) error { n.Add(1); return nil },
		)
		require.NoError(t, err)
		assert.Equal(t, int32(2), n.Load())
	})

	t.Run("任一失败取消其余", func(t *testing.T) {
		err := Run(context.Background(),
			func(context.Context) error { return errService },
			func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
		)
		assert.ErrorIs(t, err, errService)
	})

	t.Run("信号中断", func(t *testing.T) {
		sigCh := make(chan os.Signal, 1)
		sigCh <- syscall.SIGTERM
		err := RunWithOptions(context.Background(), []Option{WithSignalChannel(sigCh), WithName("test")},
			func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
		)
		assert.ErrorIs(t, err, ErrSignal)
		var se *SignalError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, syscall.SIGTERM, se.Signal)
	})

	t.Run("父 context 取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RunWithOptions(ctx, []Option{WithoutSignalHandler()},
			func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
		)
		assert.NoError(t, err)
	})

	t.Run("nil 服务", func(t *testing.T) {
		err := RunWithOptions(context.Background(), []Option{WithoutSignalHandler()}, nil)
		assert.ErrorIs(t, err, ErrNilFunc)
	})
}

func TestGroup_Cancel(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go("loop", func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() })
	cause := errors.New("shutdown")
	g.Cancel(cause)
	assert.ErrorIs(t, g.Wait(), cause)
}

type fakeServer struct {
	stop     chan struct{}
	shutdown atomic.Bool
}

func (s *fakeServer) ListenAndServe() error {
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.shutdown.Store(true)
	close(s.stop)
	return nil
}

func TestHTTPServer(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- HTTPServer(srv, time.Second)(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("HTTPServer 未退出")
	}
	assert.True(t, srv.shutdown.Load())

	assert.ErrorIs(t, HTTPServer(nil, time.Second)(context.Background()), ErrNilServer)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
