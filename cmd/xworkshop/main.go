// xworkshop 是 Pulsar 客户端用法示例的命令行入口。
//
// 用法:
//
//	xworkshop [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     客户端 properties 配置文件
//	--log-level      日志级别 (debug/info/warn/error，默认 info)
//	--log-format     日志格式 (text/json，默认 text)
//	--log-file       日志文件，按大小滚动；为空时输出到 stderr
//	--metrics-addr   Prometheus /metrics 监听地址，为空时不启动
//
// 命令:
//
//	producer / consumer                 原生生产者与消费者
//	producer-fullcfg / consumer-fullcfg 按配置文件全部键构建的同步版本
//	reader                              从中间位置读取消息
//	redelivery / dlq-consumer           否定确认、重投退避与死信
//	tracing                             通过消息属性传递追踪上下文
//	simple                              最小的发送与接收示例
//	s4r-producer / s4r-consumer         RabbitMQ 协议示例
//	jms, jms-queue-*                    JMS 风格的队列与主题
//	function                            函数运行器
//
// 退出码:
//
//	0:      成功、显示帮助或收到信号后正常关闭
//	1:      未预期的错误
//	2:      命令行参数错误
//	3:      示例运行失败
//	10-100: 具体的命令行参数错误（见 internal/cliopt）
//	300:    配置文件中的参数值非法
//
// 示例:
//
//	xworkshop -c client.properties producer -t persistent://public/default/t1 --wf data.csv
//	xworkshop -c client.properties consumer -t persistent://public/default/t1 -sbn sub1 -n 10
//	xworkshop -c client.properties jms-queue-receiver -t persistent://public/default/q1
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/lifecycle/xrun"
)

// 退出码。
const (
	exitOK            = 0
	exitUnexpected    = 1
	exitUsage         = 2
	exitRuntime       = 3
	exitInvalidConfig = 300
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	w := &workshop{}
	app := &cli.Command{
		Name:    "xworkshop",
		Usage:   "Pulsar 客户端用法示例",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "客户端 properties 配置文件",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径，为空时输出到 stderr",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Prometheus 指标监听地址，如 :9090",
			},
		},
		Before:         w.before,
		After:          w.after,
		Commands:       w.commands(),
		DefaultCommand: "help",
		Authors: []any{
			"XWorkshop Team",
		},
		// 退出码统一由 run() 映射，urfave/cli 不得直接调用 os.Exit。
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			var paramErr *cliopt.ParamError
			if errors.As(err, &paramErr) {
				return
			}
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(cmd.Root().ErrWriter, err)
			}
		},
		Description: `xworkshop 把 Pulsar 客户端的常见用法整理为子命令，
每个子命令读取命令行参数与 properties 配置文件，创建客户端，
完成少量发送或接收后退出。

配置文件的键按前缀分类:
  client.*     客户端连接、认证、TLS
  producer.*   生产者
  consumer.*   消费者（含 deadLetterPolicy、negativeAckRedeliveryBackoff）
  reader.*     Reader
  schema.*     Schema (type/definition)
  jms.*        JMS 会话`,
	}
	setUsageErrorHandler(app)
	return app
}

// usageError 标记 urfave/cli 报告的命令行用法错误。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// setUsageErrorHandler 为命令树上每个命令设置 OnUsageError，
// urfave/cli 只调用出错命令自身的处理函数。
func setUsageErrorHandler(cmd *cli.Command) {
	cmd.OnUsageError = onUsageError
	for _, sub := range cmd.Commands {
		setUsageErrorHandler(sub)
	}
}

// onUsageError 输出错误与帮助，并把错误包装为 *usageError。
func onUsageError(_ context.Context, cmd *cli.Command, err error, _ bool) error {
	fmt.Fprintf(cmd.Root().ErrWriter, "Incorrect Usage: %s\n\n", err)
	if cmd.Root() == cmd {
		_ = cli.ShowRootCommandHelp(cmd)
	} else {
		_ = cli.ShowSubcommandHelp(cmd)
	}
	return &usageError{err: err}
}

func run(args []string) int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	return exitCode(ctx, app.Run(ctx, args), os.Stderr)
}

// exitCode 把命令返回的错误映射为进程退出码。
func exitCode(ctx context.Context, err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	// 信号触发的取消按正常结束处理
	if errors.Is(err, xrun.ErrSignal) || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		return exitOK
	}

	var paramErr *cliopt.ParamError
	if errors.As(err, &paramErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", paramErr)
		return paramErr.ExitCode()
	}
	if errors.Is(err, pulsarconf.ErrInvalidConfig) {
		fmt.Fprintf(stderr, "配置错误: %v\n", err)
		return exitInvalidConfig
	}
	var rtErr *runtimeError
	if errors.As(err, &rtErr) {
		fmt.Fprintf(stderr, "运行失败: %v\n", rtErr)
		return exitRuntime
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		// onUsageError 已输出错误详情
		return exitUsage
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		// ExitErrHandler 已输出，如 help 命令的未知主题
		return exitUsage
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitUnexpected
}

// setupSignalHandler 第一次信号取消 ctx，第二次强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
