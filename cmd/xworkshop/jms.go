package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/lifecycle/xrun"
	"github.com/omeyang/xworkshop/pkg/mq/xjms"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
)

const (
	jmsProducerOp      = "Producer"
	jmsSenderPause     = 200 * time.Millisecond
	jmsProducerPause   = 100 * time.Millisecond
	jmsReceiveTimeout  = time.Second
	jmsDefaultSelector = "sequence_id >= 3 and sequence_id < 6"
	jmsDefaultReply    = "persistent://public/default/qpatn_requestor_reply"

	// 队列示例使用的消息属性
	propSequenceID = "sequence_id"
	propJMSTime    = "jms_time"
)

func selectorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "selector",
		Aliases: []string{"s"},
		Usage:   "消息选择器，按属性过滤",
		Value:   jmsDefaultSelector,
	}
}

func (w *workshop) jmsCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "jms",
			Usage: "以 JMS 风格的 API 在 queue 或 topic 上发送或接收",
			Flags: append(pulsarFlags(10),
				&cli.StringFlag{
					Name:     "op",
					Usage:    "操作类型 (Producer/Consumer/SharedConsumer/DurableConsumer/SharedDurableConsumer)",
					Required: true,
				},
				&cli.StringFlag{
					Name:    "dest",
					Aliases: []string{"dt"},
					Usage:   "目的地类型 (queue/topic)",
					Value:   "queue",
				},
				&cli.StringFlag{
					Name:    "sub-name",
					Aliases: []string{"sbn"},
					Usage:   "订阅名，共享或持久消费时必填",
				},
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runJMS(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "jms-queue-sender",
			Usage: "向 queue 发送带 sequence_id 与 jms_time 属性的消息",
			Flags: pulsarFlags(10),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runQueueSender(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "jms-queue-receiver",
			Usage: "按选择器从 queue 接收，每次最多等待 1 秒",
			Flags: append(pulsarFlags(10), selectorFlag()),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runQueueReceiver(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "jms-queue-browser",
			Usage: "按选择器查看 queue 中的消息，不消费",
			Flags: append(pulsarFlags(cliopt.AllMessages), selectorFlag()),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runQueueBrowser(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "jms-queue-requestor",
			Usage: "发送 0-9 的随机数请求并等待应答",
			Flags: append(pulsarFlags(1),
				&cli.StringFlag{
					Name:    "reply-topic",
					Aliases: []string{"rt"},
					Usage:   "应答 topic",
					Value:   jmsDefaultReply,
				},
				&cli.DurationFlag{
					Name:  "timeout",
					Usage: "等待应答的超时",
					Value: 10 * time.Second,
				},
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runQueueRequestor(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "jms-queue-service",
			Usage: "应答 queue 上的请求，返回请求值乘以 100",
			Flags: pulsarFlags(cliopt.AllMessages),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runQueueService(commandContext(ctx, cmd), cmd)
			},
		},
	}
}

// jmsSession 校验单个目的地并创建会话。
func (w *workshop) jmsSession(cmd *cli.Command) (*pulsarEnv, *xjms.Session, error) {
	env, err := w.connect(cmd, cliopt.Producer)
	if err != nil {
		return nil, nil, err
	}
	session, err := xjms.NewSession(env.client, xjms.WithConf(env.opts.Conf))
	if err != nil {
		env.Close()
		return nil, nil, fail("jms session", err)
	}
	return env, session, nil
}

// selectorFail 语法错误的选择器按参数错误处理。
func selectorFail(op string, err error) error {
	var se *xjms.SelectorError
	if errors.As(err, &se) {
		return &cliopt.ParamError{Option: "--selector", Reason: se.Error()}
	}
	return fail(op, err)
}

func (w *workshop) runJMS(ctx context.Context, cmd *cli.Command) error {
	kind, err := xjms.ParseKind(cmd.String("dest"))
	if err != nil {
		return &cliopt.ParamError{Option: "--dest", Reason: err.Error()}
	}
	op := cmd.String("op")
	producer := strings.EqualFold(strings.TrimSpace(op), jmsProducerOp)
	var mode xjms.ConsumerMode
	if !producer {
		if mode, err = xjms.ParseConsumerMode(op); err != nil {
			return &cliopt.ParamError{Option: "--op", Reason: err.Error()}
		}
	}

	env, session, err := w.jmsSession(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	dest := xjms.Destination{Name: env.topic(), Kind: kind}
	n := env.opts.NumMsg

	xlog.Info(ctx, "jms operation",
		slog.String("op", op), slog.String("destination", dest.String()), xlog.Count(int64(n)))

	if producer {
		sender, err := session.CreateSender(dest)
		if err != nil {
			return fail("create sender", err)
		}
		defer sender.Close()
		for i := 0; n == cliopt.AllMessages || i < n; i++ {
			if err := xrun.Sleep(ctx, jmsProducerPause); err != nil {
				return err
			}
			body := randomAlphanumeric(simpleMinPayload + rand.IntN(simpleMaxPayload-simpleMinPayload))
			_, err := sender.Send(ctx, []byte(body), nil)
			w.metrics.Sent(cmd.Name, dest.Name, err)
			if err != nil {
				return fail("send", err)
			}
			xlog.Info(ctx, "message sent", slog.String("body", body))
		}
		return nil
	}

	sub := cmd.String("sub-name")
	if err := xjms.ValidateMode(mode, dest, sub); err != nil {
		return &cliopt.ParamError{Option: "--op", Reason: err.Error()}
	}
	receiver, err := session.CreateConsumer(dest, mode, sub, "")
	if err != nil {
		return fail("create consumer", err)
	}
	defer receiver.Close()
	budget := mqcore.NewBudget(n)
	for budget.Take() {
		msg, err := receiver.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("receive", err)
		}
		w.metrics.Received(cmd.Name, dest.Name, "ack")
		xlog.Info(ctx, "message received", slog.String("body", msg.Text()), xlog.Subscription(receiver.Subscription()))
	}
	return nil
}

func (w *workshop) runQueueSender(ctx context.Context, cmd *cli.Command) error {
	env, session, err := w.jmsSession(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	sender, err := session.CreateSender(xjms.NewQueue(env.topic()))
	if err != nil {
		return fail("create sender", err)
	}
	defer sender.Close()

	n := env.opts.NumMsg
	for i := 0; n == cliopt.AllMessages || i < n; i++ {
		if i > 0 {
			if err := xrun.Sleep(ctx, jmsSenderPause); err != nil {
				return err
			}
		}
		body := "This is message " + strconv.Itoa(i)
		_, err := sender.Send(ctx, []byte(body), map[string]string{
			propSequenceID: strconv.Itoa(i),
			propJMSTime:    strconv.FormatInt(time.Now().UnixMilli(), 10),
		})
		w.metrics.Sent(cmd.Name, env.topic(), err)
		if err != nil {
			return fail("send", err)
		}
		xlog.Info(ctx, "message sent", slog.Int(propSequenceID, i), slog.String("body", body))
	}
	return nil
}

func (w *workshop) runQueueReceiver(ctx context.Context, cmd *cli.Command) error {
	env, session, err := w.jmsSession(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	receiver, err := session.CreateReceiver(xjms.NewQueue(env.topic()), cmd.String("selector"))
	if err != nil {
		return selectorFail("create receiver", err)
	}
	defer receiver.Close()

	// -n 为尝试次数，每次最多等待 1 秒
	tries := env.opts.NumMsg
	received := 0
	for i := 0; tries == cliopt.AllMessages || i < tries; i++ {
		msg, err := receiver.Receive(ctx, jmsReceiveTimeout)
		if errors.Is(err, xjms.ErrReceiveTimeout) {
			xlog.Info(ctx, "receive timed out", slog.Duration("timeout", jmsReceiveTimeout))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("receive", err)
		}
		received++
		w.metrics.Received(cmd.Name, env.topic(), "ack")
		seq, _ := msg.Property(propSequenceID)
		xlog.Info(ctx, "message received", slog.String(propSequenceID, seq), slog.String("body", msg.Text()))
	}
	xlog.Info(ctx, "queue receiver finished", xlog.Count(int64(received)))
	return nil
}

func (w *workshop) runQueueBrowser(ctx context.Context, cmd *cli.Command) error {
	env, session, err := w.jmsSession(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	browser, err := session.CreateBrowser(xjms.NewQueue(env.topic()), cmd.String("selector"))
	if err != nil {
		return selectorFail("create browser", err)
	}
	msgs, err := browser.Browse(ctx, env.opts.NumMsg)
	if err != nil {
		return fail("browse", err)
	}
	for _, msg := range msgs {
		w.metrics.Received(cmd.Name, env.topic(), "browse")
		seq, _ := msg.Property(propSequenceID)
		xlog.Info(ctx, "message browsed", slog.String(propSequenceID, seq), slog.String("body", msg.Text()))
	}
	xlog.Info(ctx, "queue browser finished", xlog.Count(int64(len(msgs))))
	return nil
}

func (w *workshop) runQueueRequestor(ctx context.Context, cmd *cli.Command) error {
	env, session, err := w.jmsSession(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	requestor, err := session.CreateRequestor(xjms.NewQueue(env.topic()), cmd.String("reply-topic"))
	if err != nil {
		return fail("create requestor", err)
	}
	defer requestor.Close()

	n := env.opts.NumMsg
	for i := 0; n == cliopt.AllMessages || i < n; i++ {
		value := strconv.Itoa(rand.IntN(10))
		reply, err := requestor.Request(ctx, []byte(value), cmd.Duration("timeout"))
		w.metrics.Sent(cmd.Name, env.topic(), err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("request", err)
		}
		w.metrics.Received(cmd.Name, requestor.ReplyTo(), "ack")
		xlog.Info(ctx, "reply received", slog.String("request", value), slog.String("reply", reply.Text()))
	}
	return nil
}

func (w *workshop) runQueueService(ctx context.Context, cmd *cli.Command) error {
	env, session, err := w.jmsSession(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	service, err := session.CreateService(xjms.NewQueue(env.topic()))
	if err != nil {
		return fail("create service", err)
	}
	defer service.Close()

	budget := mqcore.NewBudget(env.opts.NumMsg)
	handled := 0
	serve := func(ctx context.Context) error {
		return service.ServeBudget(ctx, budget, func(ctx context.Context, req *xjms.Message) ([]byte, error) {
			handled++
			w.metrics.Received(cmd.Name, env.topic(), "ack")
			v, err := strconv.Atoi(strings.TrimSpace(req.Text()))
			if err != nil {
				return nil, err
			}
			xlog.Info(ctx, "request handled", slog.Int("request", v), slog.Int("reply", v*100))
			return []byte(strconv.Itoa(v * 100)), nil
		})
	}
	err = xrun.RunWithOptions(ctx, []xrun.Option{
		xrun.WithName(cmd.Name),
		xrun.WithLogger(xlog.Slog(w.logger)),
	}, serve)
	xlog.Info(ctx, "queue service finished", xlog.Count(int64(handled)))
	return fail("serve", err)
}
