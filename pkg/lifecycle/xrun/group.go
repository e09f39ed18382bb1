package xrun

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"
)

// Group 一组共享生命周期的服务：任一服务返回错误即取消其余服务。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions
}

// NewGroup 创建 Group，返回的 context 在任一服务失败或 Cancel 时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动一个命名服务。
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn("service exited with error",
				slog.String("group", g.opts.name),
				slog.String("service", name),
				slog.Any("error", err),
			)
		}
		return err
	})
}

// Cancel 以 cause 取消所有服务。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有服务退出。
// 服务因 Cancel(cause) 退出时返回 cause；单纯的 context.Canceled 视为正常退出。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		if err == nil || errors.Is(err, context.Canceled) {
			return cause
		}
	}
	if errors.Is(err, context.Canceled) && g.causeCtx.Err() != nil {
		return nil
	}
	return err
}

func (g *Group) watchSignals() {
	g.Go("signal", func(ctx context.Context) error {
		ch := g.opts.signalCh
		if ch == nil {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, g.opts.signals...)
			defer signal.Stop(sigCh)
			ch = sigCh
		}
		select {
		case sig := <-ch:
			g.opts.logger.Info("received signal",
				slog.String("group", g.opts.name),
				slog.String("signal", sig.String()),
			)
			g.cancel(&SignalError{Signal: sig})
			return nil
		case <-ctx.Done():
			return nil
		}
	})
}

// Run 运行服务直到全部退出、任一失败或收到信号。
func Run(ctx context.Context, services ...func(ctx context.Context) error) error {
	return RunWithOptions(ctx, nil, services...)
}

// RunWithOptions 是带选项的 Run。
func RunWithOptions(ctx context.Context, opts []Option, services ...func(ctx context.Context) error) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignalHandler {
		g.watchSignals()
	}
	// 信号监听服务不会自行退出，业务服务全部结束后需要主动取消它
	done := make(chan struct{})
	inner, innerCtx := errgroup.WithContext(g.ctx)
	for _, svc := range services {
		inner.Go(func() error {
			if svc == nil {
				return ErrNilFunc
			}
			return svc(innerCtx)
		})
	}
	g.Go("services", func(context.Context) error {
		defer close(done)
		return inner.Wait()
	})
	go func() {
		<-done
		g.cancel(context.Canceled)
	}()
	return g.Wait()
}

// HTTPServerInterface 由 *http.Server 实现。
type HTTPServerInterface interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServer 把 HTTP server 适配为服务：ctx 取消时在 shutdownTimeout 内优雅关闭。
func HTTPServer(server HTTPServerInterface, shutdownTimeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if server == nil {
			return ErrNilServer
		}
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			err := server.Shutdown(shutdownCtx)
			if lerr := <-errCh; lerr != nil && !errors.Is(lerr, http.ErrServerClosed) && err == nil {
				err = lerr
			}
			return err
		}
	}
}

// Sleep 等待 d 或 ctx 取消，取消时返回 ctx.Err()。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
