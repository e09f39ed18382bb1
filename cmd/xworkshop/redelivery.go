package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
)

const (
	// redeliveryMaxDeliveries redelivery 命令转入死信前的最大投递次数。
	redeliveryMaxDeliveries = 5
	// dlqDefaultMaxRedeliver 配置文件未设置 deadLetterPolicy 时的最大重投次数。
	dlqDefaultMaxRedeliver = 5
)

// 未配置 negativeAckRedeliveryBackoff 时的重投退避。
var defaultNackBackoff = pulsarconf.BackoffSpec{MinDelayMs: 10, MaxDelayMs: 20, Multiplier: 1.2}

func (w *workshop) redeliveryCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "redelivery",
			Usage: "Shared 订阅上否定确认每条消息，超过 5 次投递后进入死信 topic",
			Flags: append(consumerFlags(cliopt.AllMessages), &cli.StringFlag{
				Name:    "dlt",
				Aliases: []string{"dead-letter-topic"},
				Usage:   "死信 topic",
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runRedelivery(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "dlq-consumer",
			Usage: "按 consumer.deadLetterPolicy 消费，重投次数达到上限前一次时确认",
			Flags: consumerFlags(10),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runDLQConsumer(commandContext(ctx, cmd), cmd)
			},
		},
	}
}

func (w *workshop) runRedelivery(ctx context.Context, cmd *cli.Command) error {
	dlt := cmd.String("dlt")
	if dlt == "" {
		return &cliopt.ParamError{Option: "--dlt", Reason: "dead letter topic is required"}
	}
	opts := optionsFrom(cmd)
	opts.SubscriptionType = "Shared"
	env, err := w.connectWith(opts, cliopt.Consumer)
	if err != nil {
		return err
	}
	defer env.Close()

	base := env.opts.Conf.ConsumerOptions(env.opts.Topics, env.opts.TopicPattern, env.opts.SubscriptionName, pulsar.Shared)
	base.Name = env.name("[C]")
	copts := xpulsar.NewConsumerOptionsBuilder("", "").From(base).
		WithType(pulsar.Shared).
		WithRetryEnable(true).
		WithDLQ(xpulsar.NewDLQBuilder().
			WithMaxDeliveries(redeliveryMaxDeliveries).
			WithDeadLetterTopic(dlt)).
		WithNackBackoff(nackBackoff(env.opts.Conf).Policy()).
		Build()

	consumer, err := xpulsar.NewTracingConsumer(env.client, copts)
	if err != nil {
		return fail("subscribe", err)
	}
	defer consumer.Close()

	budget := mqcore.NewBudget(env.opts.NumMsg)
	for budget.Take() {
		msgCtx, msg, err := consumer.ReceiveWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("receive", err)
		}
		consumer.Nack(msg)
		w.metrics.Received(cmd.Name, msg.Topic(), "nack")
		logMessage(msgCtx, "message received and negatively acknowledged", msg,
			slog.Int("redelivery_count", int(msg.RedeliveryCount())))
	}
	return nil
}

func nackBackoff(conf *pulsarconf.Conf) pulsarconf.BackoffSpec {
	if b, ok := conf.NackBackoff(); ok {
		return b
	}
	return defaultNackBackoff
}

func (w *workshop) runDLQConsumer(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	opts.SubscriptionType = "Shared"
	env, err := w.connectWith(opts, cliopt.Consumer)
	if err != nil {
		return err
	}
	defer env.Close()

	dl, ok := env.opts.Conf.DeadLetter()
	if !ok {
		dl = pulsarconf.DeadLetterSpec{MaxRedeliverCount: dlqDefaultMaxRedeliver}
	}
	base := env.opts.Conf.ConsumerOptions(env.opts.Topics, env.opts.TopicPattern, env.opts.SubscriptionName, pulsar.Shared)
	base.Name = env.name("[C]")
	if _, set := env.opts.Conf.Value(pulsarconf.CategoryConsumer, "subscriptionInitialPosition"); !set {
		base.SubscriptionInitialPosition = pulsar.SubscriptionPositionEarliest
	}
	copts := xpulsar.NewConsumerOptionsBuilder("", "").From(base).
		WithDLQ(dl.Builder()).
		WithNackBackoff(nackBackoff(env.opts.Conf).Policy()).
		Build()

	consumer, err := xpulsar.NewTracingConsumer(env.client, copts)
	if err != nil {
		return fail("subscribe", err)
	}
	defer consumer.Close()

	// 达到上限前一次时确认，避免消息进入死信 topic
	limit := dl.MaxRedeliverCount
	handled := 0
	budget := mqcore.NewBudget(env.opts.NumMsg)
	for budget.Take() {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		msgCtx, msg, err := consumer.ReceiveWithContext(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("receive", err)
		}
		handled++
		count := msg.RedeliveryCount()
		if limit > 0 && count+1 >= limit {
			if err := consumer.Ack(msg); err != nil {
				return fail("ack", err)
			}
			w.metrics.Received(cmd.Name, msg.Topic(), "ack")
			logMessage(msgCtx, "redelivery limit reached, message acknowledged", msg,
				slog.Int("redelivery_count", int(count)))
			continue
		}
		consumer.Nack(msg)
		w.metrics.Received(cmd.Name, msg.Topic(), "nack")
		logMessage(msgCtx, "message negatively acknowledged", msg, slog.Int("redelivery_count", int(count)))
	}
	xlog.Info(ctx, "dlq consumer finished", xlog.Count(int64(handled)))
	return nil
}
