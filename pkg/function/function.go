package function

import (
	"context"
	"maps"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

// Record 函数的一条输入。
type Record struct {
	Topic      string
	Key        string
	Properties map[string]string
	Payload    []byte
	EventTime  time.Time
	MessageID  pulsar.MessageID
}

func recordOf(msg pulsar.Message) Record {
	return Record{
		Topic:      msg.Topic(),
		Key:        msg.Key(),
		Properties: maps.Clone(msg.Properties()),
		Payload:    msg.Payload(),
		EventTime:  msg.EventTime(),
		MessageID:  msg.ID(),
	}
}

// Output 函数的输出。Topic 为空时发往 Runner 的输出 topic。
type Output struct {
	Topic      string
	Key        string
	Properties map[string]string
	Payload    []byte
}

func (o *Output) message() *pulsar.ProducerMessage {
	return &pulsar.ProducerMessage{
		Key:        o.Key,
		Properties: maps.Clone(o.Properties),
		Payload:    o.Payload,
	}
}

// Function 处理一条记录。返回 nil Output 表示没有输出；返回错误时消息被 nack。
type Function interface {
	Process(ctx context.Context, fctx *Context, rec Record) (*Output, error)
}

// Func 把普通函数适配为 Function。
type Func func(ctx context.Context, fctx *Context, rec Record) (*Output, error)

func (f Func) Process(ctx context.Context, fctx *Context, rec Record) (*Output, error) {
	return f(ctx, fctx, rec)
}
