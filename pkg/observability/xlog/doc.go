// Package xlog 基于 log/slog 的结构化日志。
//
// 所有日志方法都以 ctx 为第一个参数，EnrichHandler 会把 xctx 中的
// command、client_name、trace_id、span_id 等字段自动附加到每条记录：
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("debug").
//	    SetFormat("json").
//	    SetRotation("/var/log/xworkshop/app.log").
//	    Build()
//	if err != nil { ... }
//	defer cleanup()
//	logger.Info(ctx, "message received", xlog.Topic(topic), xlog.MessageID(id))
//
// 需要 *slog.Logger 的第三方组件可以通过 Slog 获得共享同一 Handler 的实例。
package xlog
