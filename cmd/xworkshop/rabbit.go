package main

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/pkg/mq/xrabbit"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/util/xid"
)

// newRabbitClient 创建 RabbitMQ 客户端，测试中替换。
var newRabbitClient = xrabbit.NewClient

const rabbitMessagePrefix = "This is a RabbitMQ message ******** "

func rabbitFlags(defNum int) []cli.Flag {
	return []cli.Flag{
		numMsgFlag(defNum),
		&cli.StringFlag{
			Name:     "rabbit-conf",
			Aliases:  []string{"rc"},
			Usage:    "RabbitMQ 连接配置文件 (host/port/username/password/virtual_host/amqp_URI)",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    "amqps",
			Aliases: []string{"a"},
			Usage:   "使用 amqps 连接",
		},
		&cli.StringFlag{
			Name:    "queue",
			Aliases: []string{"q"},
			Usage:   "队列名",
			Value:   xrabbit.DefaultQueue,
		},
	}
}

func (w *workshop) rabbitCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "s4r-producer",
			Usage: "经 AMQP 向队列发送持久化消息并等待确认",
			Flags: rabbitFlags(10),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runRabbitProducer(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "s4r-consumer",
			Usage: "经 AMQP 以自动确认模式消费队列",
			Flags: rabbitFlags(cliopt.AllMessages),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runRabbitConsumer(commandContext(ctx, cmd), cmd)
			},
		},
	}
}

// rabbitConnect 读取连接配置并建立连接。
func rabbitConnect(cmd *cli.Command, prefix string) (xrabbit.Client, xrabbit.Config, error) {
	n := cmd.Int("num-msg")
	if n <= 0 && n != cliopt.AllMessages {
		return nil, xrabbit.Config{}, &cliopt.ParamError{Option: "--num-msg", Reason: "must be a positive number or -1", Code: cliopt.CodeMsgNum}
	}
	cfg, err := xrabbit.LoadConfig(cmd.String("rabbit-conf"))
	if err != nil {
		return nil, cfg, &cliopt.ParamError{Option: "--rabbit-conf", Reason: err.Error(), Code: cliopt.CodeConfigFile}
	}
	cfg.TLS = cmd.Bool("amqps")
	if q := cmd.String("queue"); q != "" {
		cfg.Queue = q
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, &cliopt.ParamError{Option: "--rabbit-conf", Reason: err.Error(), Code: cliopt.CodeConfigFile}
	}
	client, err := newRabbitClient(cfg, xrabbit.WithConnectionName(xid.ClientName(prefix)))
	if err != nil {
		return nil, cfg, fail("connect", err)
	}
	return client, cfg, nil
}

func (w *workshop) runRabbitProducer(ctx context.Context, cmd *cli.Command) error {
	client, cfg, err := rabbitConnect(cmd, "[P]")
	if err != nil {
		return err
	}
	defer client.Close()

	publisher := xrabbit.NewPublisher(client, cfg.Queue, xrabbit.WithConfirmTimeout(xrabbit.DefaultConfirmTimeout))
	n := cmd.Int("num-msg")
	sent := 0
	for i := 0; n == cliopt.AllMessages || i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		body := fmt.Sprintf("%s%d", rabbitMessagePrefix, i)
		err := publisher.Publish(ctx, []byte(body))
		w.metrics.Sent(cmd.Name, cfg.Queue, err)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fail("publish", err)
		}
		sent++
		xlog.Info(ctx, "message published", slog.String("queue", cfg.Queue), slog.String("payload", body))
	}
	xlog.Info(ctx, "rabbit producer finished", slog.String("queue", cfg.Queue), xlog.Count(int64(sent)))
	return ctx.Err()
}

func (w *workshop) runRabbitConsumer(ctx context.Context, cmd *cli.Command) error {
	client, cfg, err := rabbitConnect(cmd, "[C]")
	if err != nil {
		return err
	}
	defer client.Close()

	consumer := xrabbit.NewConsumer(client, cfg.Queue, xid.ClientName("s4r"))
	received, err := consumer.Consume(ctx, cmd.Int("num-msg"), func(ctx context.Context, d amqp.Delivery) error {
		w.metrics.Received(cmd.Name, cfg.Queue, "ack")
		xlog.Info(ctx, "message received", slog.String("queue", cfg.Queue),
			slog.Uint64("delivery_tag", d.DeliveryTag), slog.String("payload", string(d.Body)))
		return nil
	})
	xlog.Info(ctx, "rabbit consumer finished", slog.String("queue", cfg.Queue), xlog.Count(int64(received)))
	if err != nil && ctx.Err() == nil {
		return fail("consume", err)
	}
	return ctx.Err()
}
