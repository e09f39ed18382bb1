// Package xrotate 基于 lumberjack 提供按大小滚动的日志文件写入器。
//
//	r, err := xrotate.NewLumberjack("/var/log/xworkshop/consumer.log",
//	    xrotate.WithMaxSize(50), xrotate.WithMaxBackups(5))
package xrotate
