package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/config/pulsarconf"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/workload"
)

const defaultConsumeNum = 20

func (w *workshop) nativeCommands() []*cli.Command {
	workloadFlag := &cli.StringFlag{
		Name:    "wf",
		Aliases: []string{"workload-file"},
		Usage:   "CSV 负载文件，首行为标题",
	}
	return []*cli.Command{
		{
			Name:  "producer",
			Usage: "读取 CSV 负载文件，每行转为 JSON 异步发送",
			Flags: append(pulsarFlags(cliopt.AllMessages), workloadFlag),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runProducer(commandContext(ctx, cmd), cmd, false)
			},
		},
		{
			Name:  "producer-fullcfg",
			Usage: "同步发送，使用配置文件中的 schema 与全部生产者参数",
			Flags: append(pulsarFlags(cliopt.AllMessages), workloadFlag),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runProducer(commandContext(ctx, cmd), cmd, true)
			},
		},
		{
			Name:  "consumer",
			Usage: "接收并确认消息",
			Flags: consumerFlags(defaultConsumeNum),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runConsumer(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "consumer-fullcfg",
			Usage: "逐条同步接收，使用配置文件中的 schema 与全部消费者参数",
			Flags: consumerFlags(defaultConsumeNum),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runConsumerFullCfg(commandContext(ctx, cmd), cmd)
			},
		},
		{
			Name:  "reader",
			Usage: "发送 -n 条消息后从第 n/2 条开始读取 2 条",
			Flags: pulsarFlags(10),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return w.runReader(commandContext(ctx, cmd), cmd)
			},
		},
	}
}

func (w *workshop) runProducer(ctx context.Context, cmd *cli.Command, fullCfg bool) error {
	opts := optionsFrom(cmd)
	if opts.WorkloadFile == "" {
		return &cliopt.ParamError{Option: "--wf", Reason: "workload file is required"}
	}
	scanner, err := workload.Open(opts.WorkloadFile)
	if err != nil {
		return &cliopt.ParamError{Option: "--wf", Reason: err.Error()}
	}
	defer scanner.Close()

	env, err := w.connectWith(opts, cliopt.Producer)
	if err != nil {
		return err
	}
	defer env.Close()

	popts, err := env.opts.Conf.ProducerOptions(env.topic())
	if err != nil {
		return err
	}
	popts.Name = env.name("[P]")
	var encode func([]byte) *pulsar.ProducerMessage
	if fullCfg {
		schema, err := env.opts.Conf.Schema()
		if err != nil {
			return err
		}
		popts.Schema = schema
		encode = schemaMessage(schema)
	} else {
		encode = func(payload []byte) *pulsar.ProducerMessage { return &pulsar.ProducerMessage{Payload: payload} }
	}

	producer, err := xpulsar.NewTracingProducer(env.client, popts)
	if err != nil {
		return fail("create producer", err)
	}
	defer producer.Close()

	command := cmd.Name
	budget := mqcore.NewBudget(env.opts.NumMsg)
	var (
		wg     sync.WaitGroup
		sent   int
		failed atomic.Int64
	)
	for !budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			break
		}
		rec, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail("read workload", err)
		}
		payload, err := rec.JSON()
		if err != nil {
			return fail("read workload", err)
		}
		budget.Take()
		sent++
		msg := encode(payload)

		if fullCfg {
			id, err := producer.Send(ctx, msg)
			w.metrics.Sent(command, env.topic(), err)
			if err != nil {
				return fail("send", err)
			}
			xlog.Debug(ctx, "message sent", xlog.MessageID(id), slog.Int("line", rec.Line))
			continue
		}

		wg.Add(1)
		line := rec.Line
		producer.SendAsync(ctx, msg, func(id pulsar.MessageID, _ *pulsar.ProducerMessage, err error) {
			defer wg.Done()
			w.metrics.Sent(command, env.topic(), err)
			if err != nil {
				failed.Add(1)
				xlog.Warn(ctx, "async send failed", slog.Int("line", line), xlog.Err(err))
				return
			}
			xlog.Debug(ctx, "message sent", xlog.MessageID(id), slog.Int("line", line))
		})
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return fail("send", fmt.Errorf("%d of %d messages failed", n, sent))
	}
	xlog.Info(ctx, "producer finished", xlog.Topic(env.topic()), xlog.Count(int64(sent)))
	return ctx.Err()
}

// schemaMessage 按 schema 类型构造消息：string 用字符串值，json 用原始 JSON。
func schemaMessage(schema pulsar.Schema) func([]byte) *pulsar.ProducerMessage {
	if schema == nil {
		return func(payload []byte) *pulsar.ProducerMessage { return &pulsar.ProducerMessage{Payload: payload} }
	}
	switch schema.GetSchemaInfo().Type {
	case pulsar.STRING:
		return func(payload []byte) *pulsar.ProducerMessage { return &pulsar.ProducerMessage{Value: string(payload)} }
	case pulsar.JSON:
		return func(payload []byte) *pulsar.ProducerMessage {
			return &pulsar.ProducerMessage{Value: json.RawMessage(payload)}
		}
	}
	return func(payload []byte) *pulsar.ProducerMessage { return &pulsar.ProducerMessage{Value: payload} }
}

func (w *workshop) runConsumer(ctx context.Context, cmd *cli.Command) error {
	env, err := w.connect(cmd, cliopt.Consumer)
	if err != nil {
		return err
	}
	defer env.Close()

	copts := env.opts.Conf.ConsumerOptions(env.opts.Topics, env.opts.TopicPattern, env.opts.SubscriptionName, env.opts.SubType())
	copts.Name = env.name("[C]")
	consumer, err := xpulsar.NewTracingConsumer(env.client, copts)
	if err != nil {
		return fail("subscribe", err)
	}
	defer consumer.Close()

	command := cmd.Name
	budget := mqcore.NewBudget(env.opts.NumMsg)
	err = consumer.ConsumeLoop(ctx, func(ctx context.Context, msg pulsar.Message) error {
		w.metrics.Received(command, msg.Topic(), "ack")
		logMessage(ctx, "message received and acknowledged", msg)
		return nil
	}, budget, nil, func(err error) {
		xlog.Warn(ctx, "receive failed", xlog.Err(err))
	})
	xlog.Info(ctx, "consumer finished", xlog.Subscription(env.opts.SubscriptionName), xlog.Count(budget.Used()))
	return err
}

func (w *workshop) runConsumerFullCfg(ctx context.Context, cmd *cli.Command) error {
	env, err := w.connect(cmd, cliopt.Consumer)
	if err != nil {
		return err
	}
	defer env.Close()

	schema, err := env.opts.Conf.Schema()
	if err != nil {
		return err
	}
	copts := env.opts.Conf.ConsumerOptions(env.opts.Topics, env.opts.TopicPattern, env.opts.SubscriptionName, env.opts.SubType())
	copts.Name = env.name("[C]")
	copts.Schema = schema
	consumer, err := xpulsar.NewTracingConsumer(env.client, copts)
	if err != nil {
		return fail("subscribe", err)
	}
	defer consumer.Close()

	received := 0
	for env.opts.NumMsg == cliopt.AllMessages || received < env.opts.NumMsg {
		msgCtx, msg, err := consumer.ReceiveWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("receive", err)
		}
		received++
		if err := consumer.Ack(msg); err != nil {
			return fail("ack", err)
		}
		w.metrics.Received(cmd.Name, msg.Topic(), "ack")
		logMessage(msgCtx, "message received and acknowledged", msg,
			slog.Int("redelivery_count", int(msg.RedeliveryCount())),
			slog.Time("publish_time", msg.PublishTime()))
	}
	xlog.Info(ctx, "consumer finished", xlog.Subscription(env.opts.SubscriptionName), xlog.Count(int64(received)))
	return nil
}

func (w *workshop) runReader(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	if opts.NumMsg < 3 {
		return &cliopt.ParamError{Option: "--num-msg", Reason: "must be at least 3", Code: cliopt.CodeMsgNum}
	}
	env, err := w.connectWith(opts, cliopt.Reader)
	if err != nil {
		return err
	}
	defer env.Close()

	popts, err := env.opts.Conf.ProducerOptions(env.topic())
	if err != nil {
		return err
	}
	popts.Name = env.name("[P]")
	producer, err := xpulsar.NewTracingProducer(env.client, popts)
	if err != nil {
		return fail("create producer", err)
	}
	defer producer.Close()

	n := env.opts.NumMsg
	var start pulsar.MessageID
	for i := range n {
		id, err := producer.Send(ctx, &pulsar.ProducerMessage{Payload: fmt.Appendf(nil, "message %d", i)})
		w.metrics.Sent(cmd.Name, env.topic(), err)
		if err != nil {
			return fail("send", err)
		}
		if i == n/2 {
			start = id
		}
	}

	ropts := env.opts.Conf.ReaderOptions(env.topic(), start)
	// 未配置时包含起始消息，-n 3 也能读满 2 条
	if _, ok := env.opts.Conf.Value(pulsarconf.CategoryReader, "startMessageIdInclusive"); !ok {
		ropts.StartMessageIDInclusive = true
	}
	reader, err := env.client.CreateReader(ropts)
	if err != nil {
		return fail("create reader", err)
	}
	defer reader.Close()

	for range 2 {
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		msg, err := reader.Next(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fail("read", err)
		}
		w.metrics.Received(cmd.Name, msg.Topic(), "read")
		logMessage(ctx, "message read", msg)
	}
	return nil
}

// logMessage 记录消息的 key、properties 与 payload。
func logMessage(ctx context.Context, text string, msg pulsar.Message, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{
		xlog.MessageID(msg.ID()),
		xlog.Key(msg.Key()),
		slog.String("properties", formatProperties(msg.Properties())),
		slog.String("payload", string(msg.Payload())),
	}, attrs...)
	xlog.Info(ctx, text, attrs...)
}

func formatProperties(props map[string]string) string {
	if len(props) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, k := range slices.Sorted(maps.Keys(props)) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
	}
	b.WriteByte('}')
	return b.String()
}
