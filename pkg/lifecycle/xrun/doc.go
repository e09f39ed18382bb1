// Package xrun 基于 errgroup 管理长时间运行的子命令服务。
//
// Run 会额外启动一个信号监听服务：收到 SIGINT/SIGTERM/SIGHUP 时以
// *SignalError 为 cause 取消所有服务。调用方可以用 errors.Is(err, ErrSignal)
// 区分"被信号中断"和"服务失败"：
//
//	err := xrun.Run(ctx, consumer.Run, watcher.Run)
//	if errors.Is(err, xrun.ErrSignal) {
//	    return nil // 正常退出
//	}
package xrun
