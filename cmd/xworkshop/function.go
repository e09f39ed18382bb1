package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/config/xconf"
	"github.com/omeyang/xworkshop/pkg/function"
	"github.com/omeyang/xworkshop/pkg/lifecycle/xrun"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/storage/xcache"
)

// functionFactory 创建函数实例，返回的 cleanup 在运行结束后调用。
type functionFactory func(ctx context.Context, cmd *cli.Command) (function.Function, func(), error)

func functionFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		numMsgFlag(cliopt.AllMessages),
		&cli.StringFlag{
			Name:    "service-url",
			Aliases: []string{"u"},
			Usage:   "broker 地址，未指定时取配置文件中的 client.serviceUrl 或 brokerServiceUrl",
		},
		&cli.StringFlag{
			Name:     "inputs",
			Aliases:  []string{"i"},
			Usage:    "输入 topic，逗号分隔",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "输出 topic，为空时只处理不转发",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "函数名，默认取子命令名",
		},
		&cli.StringFlag{
			Name:    "sub-name",
			Aliases: []string{"sbn"},
			Usage:   "订阅名，默认取函数名",
		},
		&cli.StringFlag{
			Name:  "user-config",
			Usage: "用户配置文件 (properties/yaml/json)，修改后自动重新加载",
		},
	}
	return append(flags, extra...)
}

func (w *workshop) functionCommand() *cli.Command {
	return &cli.Command{
		Name:  "function",
		Usage: "以函数方式处理输入 topic 中的消息",
		Commands: []*cli.Command{
			{
				Name:   "add-metadata",
				Usage:  "复制 key 与 properties，增加 MyCustomProp 后转发",
				Flags:  functionFlags(),
				Action: w.functionAction(newAddMetadata),
			},
			{
				Name:   "cdc-router",
				Usage:  "按 new_order_status 把变更记录路由到 <PULSAR_NAMESPACE>/<status>",
				Flags:  functionFlags(),
				Action: w.functionAction(newCdcRouter),
			},
			{
				Name:  "change-writer",
				Usage: "把订单状态合并到变更表，输出最新变更",
				Flags: functionFlags(&cli.StringFlag{
					Name:  "redis-addr",
					Usage: "Redis 地址，为空时使用进程内存储",
				}),
				Action: w.functionAction(newChangeWriter),
			},
		},
	}
}

func newAddMetadata(context.Context, *cli.Command) (function.Function, func(), error) {
	return function.NewAddMetadata(), func() {}, nil
}

func newCdcRouter(context.Context, *cli.Command) (function.Function, func(), error) {
	return function.NewCdcRouter(), func() {}, nil
}

func newChangeWriter(ctx context.Context, cmd *cli.Command) (function.Function, func(), error) {
	addr := cmd.String("redis-addr")
	if addr == "" {
		store, err := xcache.NewMemoryChangeStore()
		if err != nil {
			return nil, nil, err
		}
		fn, err := function.NewChangeWriter(store)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return fn, func() { _ = store.Close() }, nil
	}

	rdb, err := xcache.NewRedis(redis.NewClient(&redis.Options{Addr: addr}))
	if err != nil {
		return nil, nil, err
	}
	if err := rdb.Client().Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	store, err := xcache.NewRedisChangeStore(rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	fn, err := function.NewChangeWriter(store, function.WithLocker(rdb))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	xlog.Info(ctx, "change store connected", slog.String("redis", addr))
	return fn, func() { _ = rdb.Close() }, nil
}

func (w *workshop) functionAction(factory functionFactory) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return w.runFunction(commandContext(ctx, cmd), cmd, factory)
	}
}

func (w *workshop) runFunction(ctx context.Context, cmd *cli.Command, factory functionFactory) error {
	name := cmd.String("name")
	if name == "" {
		name = cmd.Name
	}
	sub := cmd.String("sub-name")
	if sub == "" {
		sub = name
	}
	cfg := function.Config{
		Name:         name,
		Inputs:       cliopt.SplitTopics(cmd.String("inputs")),
		Output:       cmd.String("output"),
		Subscription: sub,
	}

	var userCfg xconf.Config
	if path := cmd.String("user-config"); path != "" {
		c, values, err := function.LoadUserConfig(path)
		if err != nil {
			return &cliopt.ParamError{Option: "--user-config", Reason: err.Error(), Code: cliopt.CodeConfigFile}
		}
		userCfg, cfg.UserConfig = c, values
	}

	opts := optionsFrom(cmd)
	opts.Topics = cfg.Inputs
	opts.SubscriptionName = sub
	opts.SubscriptionType = "Shared"
	env, err := w.connectWith(opts, cliopt.Consumer)
	if err != nil {
		return err
	}
	defer env.Close()

	fn, cleanup, err := factory(ctx, cmd)
	if err != nil {
		return fail("create function", err)
	}
	defer cleanup()

	runner, err := function.NewRunner(env.client, fn, cfg,
		function.WithConf(env.opts.Conf),
		function.WithMetrics(w.metrics),
		function.WithLogger(w.logger))
	if err != nil {
		return fail("create runner", err)
	}
	defer runner.Close()

	// 函数处理完 -n 条记录后结束整个运行组，包括配置监视
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	services := []func(context.Context) error{
		func(ctx context.Context) error {
			defer stop()
			return runner.Run(ctx, mqcore.NewBudget(env.opts.NumMsg))
		},
	}
	if userCfg != nil {
		watcher, err := runner.Context().WatchUserConfig(userCfg)
		if err != nil {
			return fail("watch user config", err)
		}
		services = append(services, watcher.Run)
	}

	err = xrun.RunWithOptions(runCtx, []xrun.Option{
		xrun.WithName(name),
		xrun.WithLogger(xlog.Slog(w.logger)),
	}, services...)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return fail("function", err)
}
