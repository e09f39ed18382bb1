package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/pkg/lifecycle/xrun"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
)

const (
	simplePause      = 50 * time.Millisecond
	simpleMinPayload = 15
	simpleMaxPayload = 30
	simpleTimeLayout = "2006-01-02 03:04:05.000"
	separatorLine    = "---------------------------------------------------------"
)

func (w *workshop) simpleCommand() *cli.Command {
	return &cli.Command{
		Name:  "simple",
		Usage: "逐条同步发送或接收带 key 的随机消息",
		Flags: append(consumerFlags(10), &cli.StringFlag{
			Name:     "op",
			Usage:    "操作类型 (producer/consumer)",
			Required: true,
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = commandContext(ctx, cmd)
			switch strings.ToLower(cmd.String("op")) {
			case "producer":
				return w.runSimpleProducer(ctx, cmd)
			case "consumer":
				return w.runSimpleConsumer(ctx, cmd)
			}
			return &cliopt.ParamError{Option: "--op", Reason: fmt.Sprintf("unknown operation %q, expecting producer or consumer", cmd.String("op"))}
		},
	}
}

// simpleKey 返回形如 "[i] 20240102-030405-678" 的消息 key（12 小时制）。
func simpleKey(i int, t time.Time) string {
	return fmt.Sprintf("[%d] %s-%03d", i, t.Format("20060102-030405"), t.Nanosecond()/int(time.Millisecond))
}

func (w *workshop) runSimpleProducer(ctx context.Context, cmd *cli.Command) error {
	env, err := w.connect(cmd, cliopt.Producer)
	if err != nil {
		return err
	}
	defer env.Close()

	name := env.name("[P]")
	popts, err := env.opts.Conf.ProducerOptions(env.topic())
	if err != nil {
		return err
	}
	popts.Name = name
	producer, err := xpulsar.NewTracingProducer(env.client, popts)
	if err != nil {
		return fail("create producer", err)
	}
	defer producer.Close()

	out := cmd.Root().Writer
	fmt.Fprintf(out, "%s\n%s\nProducer    : %s\nTopic       : %s\nNumber of messages to publish: %d\n%s\n",
		time.Now().Format(simpleTimeLayout), separatorLine, name, env.topic(), env.opts.NumMsg, separatorLine)

	for i := 0; env.opts.NumMsg == cliopt.AllMessages || i < env.opts.NumMsg; i++ {
		if err := xrun.Sleep(ctx, simplePause); err != nil {
			return err
		}
		key := simpleKey(i, time.Now())
		payload := randomAlphanumeric(simpleMinPayload + rand.IntN(simpleMaxPayload-simpleMinPayload))
		_, err := producer.Send(ctx, &pulsar.ProducerMessage{Key: key, Payload: []byte(payload)})
		w.metrics.Sent(cmd.Name, env.topic(), err)
		if err != nil {
			return fail("send", err)
		}
		fmt.Fprintf(out, "  message published: msg-key=%s, msg-payload=%s\n", key, payload)
	}
	return nil
}

func (w *workshop) runSimpleConsumer(ctx context.Context, cmd *cli.Command) error {
	env, err := w.connect(cmd, cliopt.Consumer)
	if err != nil {
		return err
	}
	defer env.Close()

	name := env.name("[C]")
	copts := env.opts.Conf.ConsumerOptions(env.opts.Topics, env.opts.TopicPattern, env.opts.SubscriptionName, env.opts.SubType())
	copts.Name = name
	consumer, err := xpulsar.NewTracingConsumer(env.client, copts)
	if err != nil {
		return fail("subscribe", err)
	}
	defer consumer.Close()

	out := cmd.Root().Writer
	fmt.Fprintf(out, "%s\n%s\nConsumer    : %s\nTopic       : %s\nSubscription: %s\nSubscription Type: %s\n%s\n",
		time.Now().Format(simpleTimeLayout), separatorLine, name, strings.Join(env.opts.Topics, ","),
		env.opts.SubscriptionName, subTypeName(env.opts.SubType()), separatorLine)

	byKey := newKeyedPayloads()
	for env.opts.NumMsg == cliopt.AllMessages || byKey.total < env.opts.NumMsg {
		_, msg, err := consumer.ReceiveWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fail("receive", err)
		}
		if err := consumer.Ack(msg); err != nil {
			return fail("ack", err)
		}
		w.metrics.Received(cmd.Name, msg.Topic(), "ack")
		key := msg.Key()
		if key == "" {
			key = "N/A"
		}
		byKey.add(key, string(msg.Payload()))
		fmt.Fprintf(out, "  message received: msg-key=%s, msg-properties=%s, msg-payload=%s, publish-time: %s\n",
			key, formatProperties(msg.Properties()), msg.Payload(), msg.PublishTime().Format(simpleTimeLayout))
	}
	byKey.print(out)
	return ctx.Err()
}

func subTypeName(t pulsar.SubscriptionType) string {
	switch t {
	case pulsar.Failover:
		return "Failover"
	case pulsar.Shared:
		return "Shared"
	case pulsar.KeyShared:
		return "Key_Shared"
	}
	return "Exclusive"
}

// keyedPayloads 按 key 分组的消息内容，保留 key 首次出现的顺序。
type keyedPayloads struct {
	keys     []string
	payloads map[string][]string
	total    int
}

func newKeyedPayloads() *keyedPayloads {
	return &keyedPayloads{payloads: make(map[string][]string)}
}

func (k *keyedPayloads) add(key, payload string) {
	if _, ok := k.payloads[key]; !ok {
		k.keys = append(k.keys, key)
	}
	k.payloads[key] = append(k.payloads[key], payload)
	k.total++
}

func (k *keyedPayloads) print(w io.Writer) {
	fmt.Fprintf(w, "%s\nReceived %d messages with %d keys\n", separatorLine, k.total, len(k.keys))
	for _, key := range k.keys {
		list := k.payloads[key]
		fmt.Fprintf(w, "  [key: %s (%d messages)]\n", key, len(list))
		for _, p := range list {
			fmt.Fprintf(w, "        %s\n", p)
		}
	}
}
