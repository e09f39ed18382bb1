package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xworkshop/internal/cliopt"
	"github.com/omeyang/xworkshop/internal/mqcore"
	"github.com/omeyang/xworkshop/pkg/context/xctx"
	"github.com/omeyang/xworkshop/pkg/mq/xpulsar"
	"github.com/omeyang/xworkshop/pkg/observability/xlog"
	"github.com/omeyang/xworkshop/pkg/observability/xmetrics"
)

const (
	tracingServiceName = "pulsarWorkshopTracing"
	// tracingSeqProperty 消息序号属性。
	tracingSeqProperty = "msg-seq"
)

func (w *workshop) tracingCommand() *cli.Command {
	return &cli.Command{
		Name:  "tracing",
		Usage: "发送带追踪上下文的消息，再接收并输出 trace id",
		Flags: pulsarFlags(10),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return w.runTracing(commandContext(ctx, cmd), cmd)
		},
	}
}

func (w *workshop) runTracing(ctx context.Context, cmd *cli.Command) (err error) {
	opts := optionsFrom(cmd)
	if opts.NumMsg == cliopt.AllMessages {
		return &cliopt.ParamError{Option: "--num-msg", Reason: "must be a positive number", Code: cliopt.CodeMsgNum}
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		sctx := context.WithoutCancel(ctx)
		err = errors.Join(err, tp.Shutdown(sctx), mp.Shutdown(sctx))
	}()
	observer, err := xmetrics.NewOTelObserver(xmetrics.WithTracerProvider(tp), xmetrics.WithMeterProvider(mp))
	if err != nil {
		return fail("tracing", err)
	}

	env, err := w.connectWith(opts, cliopt.Producer,
		xpulsar.WithTracer(xpulsar.NewOTelTracer()),
		xpulsar.WithObserver(observer))
	if err != nil {
		return err
	}
	defer env.Close()

	// 先订阅，保证能收到随后发送的消息
	copts := env.opts.Conf.ConsumerOptions(env.opts.Topics, "", "sub-"+tracingServiceName, pulsar.Exclusive)
	copts.Name = env.name("[C]")
	consumer, err := xpulsar.NewTracingConsumer(env.client, copts)
	if err != nil {
		return fail("subscribe", err)
	}
	defer consumer.Close()

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
	for i := range n {
		// 每条消息一个根 span，trace id 经 traceparent 属性传给消费者
		sctx, span := tp.Tracer(tracingServiceName).Start(ctx, "publish", trace.WithSpanKind(trace.SpanKindProducer))
		_, err := producer.Send(sctx, &pulsar.ProducerMessage{
			Payload:    []byte(randomAlphanumeric(10)),
			Properties: map[string]string{tracingSeqProperty: strconv.Itoa(i)},
		})
		span.End()
		w.metrics.Sent(cmd.Name, env.topic(), err)
		if err != nil {
			return fail("send", err)
		}
		xlog.Debug(sctx, "traced message sent", slog.String("trace_id", span.SpanContext().TraceID().String()))
	}

	err = consumer.ConsumeLoop(ctx, func(ctx context.Context, msg pulsar.Message) error {
		w.metrics.Received(cmd.Name, msg.Topic(), "ack")
		logMessage(ctx, "message received and acknowledged", msg,
			slog.String("trace_id", xctx.TraceID(ctx)))
		return nil
	}, mqcore.NewBudget(n), nil, nil)
	if err != nil {
		return err
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err == nil {
		for _, sm := range rm.ScopeMetrics {
			xlog.Info(ctx, "tracing metrics collected",
				slog.String("scope", sm.Scope.Name),
				xlog.Count(int64(len(sm.Metrics))))
		}
	}
	return nil
}
