package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/pkg/context/xctx"
	"github.com/omeyang/xworkshop/pkg/lifecycle/xrun"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
	"github.com/omeyang/xworkshop/pkg/util/xid"
)

const metricsShutdownTimeout = 5 * time.Second

// newPulsarClient 创建 Pulsar 客户端，测试中替换为进程内 broker。
var newPulsarClient = xpulsar.NewClient

// runtimeError 示例运行期失败，退出码 3。
type runtimeError struct {
	op  string
	err error
}

func (e *runtimeError) Error() string { return e.op + ": " + e.err.Error() }

func (e *runtimeError) Unwrap() error { return e.err }

// fail 把 err 包装为 runtimeError，err 为 nil 时返回 nil。
func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &runtimeError{op: op, err: err}
}

// workshop 持有全局选项建立的进程级资源。
type workshop struct {
	logger      xlog.LoggerWithLevel
	logCleanup  func() error
	metrics     *xmetrics.Registry
	stopMetrics func() error
}

func (w *workshop) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	logger, cleanup, err := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format")).
		SetRotation(cmd.String("log-file")).
		SetEnrich(true).
		Build()
	if err != nil {
		return ctx, &cliopt.ParamError{Option: "--log-*", Reason: err.Error()}
	}
	w.logger, w.logCleanup = logger, cleanup
	xlog.SetDefault(logger)

	w.metrics = xmetrics.NewRegistry()
	if addr := cmd.String("metrics-addr"); addr != "" {
		w.serveMetrics(ctx, addr)
	}
	return ctx, nil
}

// serveMetrics 在后台提供 /metrics，after 中关闭。
func (w *workshop) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", w.metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() { done <- xrun.HTTPServer(server, metricsShutdownTimeout)(sctx) }()
	xlog.Info(ctx, "metrics server listening", slog.String("addr", addr))

	w.stopMetrics = func() error {
		cancel()
		return <-done
	}
}

func (w *workshop) after(ctx context.Context, _ *cli.Command) error {
	var errs []error
	if w.stopMetrics != nil {
		if err := w.stopMetrics(); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
		w.stopMetrics = nil
	}
	if w.logCleanup != nil {
		errs = append(errs, w.logCleanup())
		w.logCleanup = nil
	}
	return errors.Join(errs...)
}

// commands 返回全部子命令。
func (w *workshop) commands() []*cli.Command {
	var cmds []*cli.Command
	cmds = append(cmds, w.nativeCommands()...)
	cmds = append(cmds, w.redeliveryCommands()...)
	cmds = append(cmds, w.simpleCommand(), w.tracingCommand())
	cmds = append(cmds, w.rabbitCommands()...)
	cmds = append(cmds, w.jmsCommands()...)
	cmds = append(cmds, w.functionCommand())
	return cmds
}

// commandContext 在 ctx 中记录子命令名，日志据此带上 command 字段。
func commandContext(ctx context.Context, cmd *cli.Command) context.Context {
	if c, err := xctx.WithCommand(ctx, cmd.FullName()); err == nil {
		ctx = c
	}
	return ctx
}

// pulsarEnv 一次子命令运行使用的参数与客户端。
type pulsarEnv struct {
	opts   cliopt.Options
	client xpulsar.Client
}

func (e *pulsarEnv) Close() {
	if e != nil && e.client != nil {
		_ = e.client.Close()
	}
}

// topic 返回唯一的 topic，调用前需已按 Producer/Reader 校验。
func (e *pulsarEnv) topic() string { return e.opts.Topics[0] }

// name 返回客户端名，未指定时用 prefix 生成。
func (e *pulsarEnv) name(prefix string) string {
	if e.opts.ClientName != "" {
		return e.opts.ClientName
	}
	return xid.ClientName(prefix)
}

// optionsFrom 读取命令行中的公共参数。
func optionsFrom(cmd *cli.Command) cliopt.Options {
	return cliopt.Options{
		ConfigFile:       cmd.String("config"),
		NumMsg:           cmd.Int("num-msg"),
		ServiceURL:       cmd.String("service-url"),
		ClientName:       cmd.String("client-name"),
		Topics:           cliopt.SplitTopics(cmd.String("topic")),
		TopicPattern:     cmd.String("topic-pattern"),
		SubscriptionName: cmd.String("sub-name"),
		SubscriptionType: cmd.String("sub-type"),
		WorkloadFile:     cmd.String("wf"),
	}
}

// connect 校验参数并创建 Pulsar 客户端。
func (w *workshop) connect(cmd *cli.Command, role cliopt.Role, extra ...xpulsar.Option) (*pulsarEnv, error) {
	return w.connectWith(optionsFrom(cmd), role, extra...)
}

func (w *workshop) connectWith(opts cliopt.Options, role cliopt.Role, extra ...xpulsar.Option) (*pulsarEnv, error) {
	if err := opts.Validate(role); err != nil {
		return nil, err
	}
	base, err := opts.Conf.ClientOptions(opts.ServiceURL)
	if err != nil {
		return nil, err
	}
	clientOpts := []xpulsar.Option{xpulsar.WithBaseOptions(base)}
	if w.metrics != nil {
		clientOpts = append(clientOpts, xpulsar.WithMetricsRegisterer(w.metrics.Registerer()))
	}
	client, err := newPulsarClient(opts.ServiceURL, append(clientOpts, extra...)...)
	if err != nil {
		return nil, fail("connect", err)
	}
	return &pulsarEnv{opts: opts, client: client}, nil
}

func numMsgFlag(def int) cli.Flag {
	return &cli.IntFlag{
		Name:    "num-msg",
		Aliases: []string{"n"},
		Usage:   "消息数量，-1 表示不限",
		Value:   def,
	}
}

// pulsarFlags 连接与单个 topic 的参数。
func pulsarFlags(defNum int) []cli.Flag {
	return []cli.Flag{
		numMsgFlag(defNum),
		&cli.StringFlag{
			Name:    "service-url",
			Aliases: []string{"u"},
			Usage:   "broker 地址，未指定时取配置文件中的 client.serviceUrl 或 brokerServiceUrl",
		},
		&cli.StringFlag{
			Name:    "topic",
			Aliases: []string{"t"},
			Usage:   "topic 名称，消费者可用逗号分隔多个",
		},
		&cli.StringFlag{
			Name:    "client-name",
			Aliases: []string{"cn"},
			Usage:   "生产者或消费者名称，默认自动生成",
		},
	}
}

// subscriptionFlags 消费者订阅参数。
func subscriptionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "topic-pattern",
			Aliases: []string{"tp"},
			Usage:   "topic 正则，未指定 --topic 时使用",
		},
		&cli.StringFlag{
			Name:    "sub-name",
			Aliases: []string{"sbn"},
			Usage:   "订阅名",
		},
		&cli.StringFlag{
			Name:    "sub-type",
			Aliases: []string{"sbt"},
			Usage:   "订阅类型 (Exclusive/Failover/Shared/Key_Shared)",
			Value:   "Exclusive",
		},
	}
}

func consumerFlags(defNum int) []cli.Flag {
	return append(pulsarFlags(defNum), subscriptionFlags()...)
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomAlphanumeric 返回 n 个随机字母数字。
func randomAlphanumeric(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(b)
}
